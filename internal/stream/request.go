package stream

import (
	"fmt"
	"strings"
)

// Commitment is the confirmation level requested for updates.
type Commitment int32

// Commitment levels, numbered as on the Yellowstone wire.
const (
	CommitmentProcessed Commitment = 0
	CommitmentConfirmed Commitment = 1
	CommitmentFinalized Commitment = 2
)

func (c Commitment) String() string {
	switch c {
	case CommitmentProcessed:
		return "processed"
	case CommitmentConfirmed:
		return "confirmed"
	case CommitmentFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("commitment(%d)", int32(c))
	}
}

// ParseCommitment parses "processed", "confirmed" or "finalized".
func ParseCommitment(s string) (Commitment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "processed":
		return CommitmentProcessed, nil
	case "confirmed":
		return CommitmentConfirmed, nil
	case "finalized":
		return CommitmentFinalized, nil
	default:
		return 0, fmt.Errorf("unknown commitment %q", s)
	}
}

// SubscriptionRequest describes which updates to stream. Filter maps are keyed
// by filter name; updates carry the names of the filters they matched.
//
// A request is treated as immutable once passed to Connect: the same value is
// written again, unchanged, on every reconnect.
type SubscriptionRequest struct {
	Accounts           map[string]AccountFilter
	Slots              map[string]SlotFilter
	Transactions       map[string]TransactionFilter
	TransactionsStatus map[string]TransactionFilter
	Blocks             map[string]BlockFilter
	BlocksMeta         map[string]BlockMetaFilter
	Entry              map[string]EntryFilter
	Commitment         *Commitment
	AccountsDataSlice  []DataSlice
	Ping               *Ping
	FromSlot           *uint64
}

// AccountFilter selects account updates by address or owner program.
type AccountFilter struct {
	Account              []string
	Owner                []string
	Filters              []AccountFilterRule
	NonemptyTxnSignature *bool
}

// AccountFilterRule is one of memcmp, data size or token account state.
type AccountFilterRule struct {
	Memcmp            *MemcmpFilter
	DataSize          *uint64
	TokenAccountState *bool
}

// MemcmpFilter matches account data at Offset. Exactly one of Bytes, Base58
// or Base64 should be set.
type MemcmpFilter struct {
	Offset uint64
	Bytes  []byte
	Base58 string
	Base64 string
}

// SlotFilter selects slot updates.
type SlotFilter struct {
	FilterByCommitment *bool
	InterslotUpdates   *bool
}

// TransactionFilter selects transactions or transaction statuses.
type TransactionFilter struct {
	Vote            *bool
	Failed          *bool
	Signature       *string
	AccountInclude  []string
	AccountExclude  []string
	AccountRequired []string
}

// BlockFilter selects full block updates.
type BlockFilter struct {
	AccountInclude      []string
	IncludeTransactions *bool
	IncludeAccounts     *bool
	IncludeEntries      *bool
}

// BlockMetaFilter selects block metadata updates.
type BlockMetaFilter struct{}

// EntryFilter selects entry updates.
type EntryFilter struct{}

// DataSlice limits the account data returned in account updates.
type DataSlice struct {
	Offset uint64
	Length uint64
}

// Ping asks the server to answer with a pong carrying ID.
type Ping struct {
	ID int32
}

// PingRequest returns a request carrying only a ping marker.
func PingRequest(id int32) *SubscriptionRequest {
	return &SubscriptionRequest{
		Accounts:           map[string]AccountFilter{},
		Slots:              map[string]SlotFilter{},
		Transactions:       map[string]TransactionFilter{},
		TransactionsStatus: map[string]TransactionFilter{},
		Blocks:             map[string]BlockFilter{},
		BlocksMeta:         map[string]BlockMetaFilter{},
		Entry:              map[string]EntryFilter{},
		AccountsDataSlice:  []DataSlice{},
		Ping:               &Ping{ID: id},
	}
}

// IsPing reports whether r carries a ping marker and no filters.
func (r *SubscriptionRequest) IsPing() bool {
	if r == nil || r.Ping == nil {
		return false
	}
	return len(r.Accounts) == 0 &&
		len(r.Slots) == 0 &&
		len(r.Transactions) == 0 &&
		len(r.TransactionsStatus) == 0 &&
		len(r.Blocks) == 0 &&
		len(r.BlocksMeta) == 0 &&
		len(r.Entry) == 0
}
