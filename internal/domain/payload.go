package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/mr-tron/base58"
)

// ErrMalformedPayload is returned when a payload has the expected shape but
// a field has the wrong type.
var ErrMalformedPayload = errors.New("malformed payload")

// AccountUpdateFromPayload extracts an account update from a normalized
// update payload ({filters, account: {account: {...}, slot, isStartup}}).
// ok is false when the payload carries no account update.
func AccountUpdateFromPayload(p map[string]any, source Source, receivedAt int64) (u *AccountUpdate, ok bool, err error) {
	account, ok := p["account"].(map[string]any)
	if !ok {
		return nil, false, nil
	}
	info, ok := account["account"].(map[string]any)
	if !ok {
		return nil, true, fmt.Errorf("%w: account update without account info", ErrMalformedPayload)
	}

	u = &AccountUpdate{
		Filters:    stringList(p["filters"]),
		Source:     source,
		ReceivedAt: receivedAt,
	}

	if u.Pubkey, err = stringField(info, "pubkey"); err != nil {
		return nil, true, err
	}
	if u.Pubkey == "" {
		return nil, true, fmt.Errorf("%w: account update without pubkey", ErrMalformedPayload)
	}
	if u.Owner, err = stringField(info, "owner"); err != nil {
		return nil, true, err
	}
	if u.TxnSignature, err = stringField(info, "txnSignature"); err != nil {
		return nil, true, err
	}
	if u.Lamports, err = uintField(info, "lamports"); err != nil {
		return nil, true, err
	}
	if u.RentEpoch, err = uintField(info, "rentEpoch"); err != nil {
		return nil, true, err
	}
	if u.WriteVersion, err = uintField(info, "writeVersion"); err != nil {
		return nil, true, err
	}
	if u.Executable, err = boolField(info, "executable"); err != nil {
		return nil, true, err
	}
	if u.Slot, err = uintField(account, "slot"); err != nil {
		return nil, true, err
	}
	if u.IsStartup, err = boolField(account, "isStartup"); err != nil {
		return nil, true, err
	}

	data, err := stringField(info, "data")
	if err != nil {
		return nil, true, err
	}
	if data != "" {
		if u.Data, err = base58.Decode(data); err != nil {
			return nil, true, fmt.Errorf("%w: data: %v", ErrMalformedPayload, err)
		}
	}

	return u, true, nil
}

// SlotUpdateFromPayload extracts a slot update from a normalized update
// payload ({filters, slot: {slot, parent, status}}). ok is false when the
// payload carries no slot update.
func SlotUpdateFromPayload(p map[string]any, source Source, receivedAt int64) (u *SlotUpdate, ok bool, err error) {
	slot, ok := p["slot"].(map[string]any)
	if !ok {
		return nil, false, nil
	}

	u = &SlotUpdate{
		Filters:    stringList(p["filters"]),
		Source:     source,
		ReceivedAt: receivedAt,
	}
	if u.Slot, err = uintField(slot, "slot"); err != nil {
		return nil, true, err
	}
	if u.Parent, err = uintField(slot, "parent"); err != nil {
		return nil, true, err
	}

	switch s := slot["status"].(type) {
	case nil:
		u.Status = "SLOT_PROCESSED"
	case string:
		u.Status = s
	default:
		u.Status = fmt.Sprint(s)
	}
	return u, true, nil
}

func stringField(m map[string]any, key string) (string, error) {
	switch v := m[key].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("%w: %s: expected string, got %T", ErrMalformedPayload, key, v)
	}
}

func boolField(m map[string]any, key string) (bool, error) {
	switch v := m[key].(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	default:
		return false, fmt.Errorf("%w: %s: expected bool, got %T", ErrMalformedPayload, key, v)
	}
}

func uintField(m map[string]any, key string) (uint64, error) {
	bad := func(v any) error {
		return fmt.Errorf("%w: %s: expected unsigned integer, got %T(%v)", ErrMalformedPayload, key, v, v)
	}

	switch v := m[key].(type) {
	case nil:
		return 0, nil
	case uint64:
		return v, nil
	case uint32:
		return uint64(v), nil
	case uint:
		return uint64(v), nil
	case int64:
		if v < 0 {
			return 0, bad(v)
		}
		return uint64(v), nil
	case int32:
		if v < 0 {
			return 0, bad(v)
		}
		return uint64(v), nil
	case int:
		if v < 0 {
			return 0, bad(v)
		}
		return uint64(v), nil
	case float64:
		if v < 0 || v != math.Trunc(v) || v >= math.MaxUint64 {
			return 0, bad(v)
		}
		return uint64(v), nil
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, bad(v)
		}
		return n, nil
	default:
		return 0, bad(v)
	}
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
