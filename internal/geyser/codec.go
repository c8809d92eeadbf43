package geyser

import (
	"fmt"
	"sort"

	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"sonic-stream/internal/stream"
)

// encodeRequest converts req into a SubscribeRequest message.
func encodeRequest(req *stream.SubscriptionRequest) (*dynamicpb.Message, error) {
	if req == nil {
		return nil, stream.ErrNilRequest
	}
	m := dynamicpb.NewMessage(requestDescriptor)

	for _, name := range sortedKeys(req.Accounts) {
		f := req.Accounts[name]
		var encErr error
		putEntry(m, "accounts", name, func(v protoreflect.Message) {
			appendStrings(v, "account", f.Account)
			appendStrings(v, "owner", f.Owner)
			for _, rule := range f.Filters {
				if err := validateRule(rule); err != nil {
					encErr = fmt.Errorf("accounts filter %q: %w", name, err)
					return
				}
				appendMessage(v, "filters", func(r protoreflect.Message) { encodeRule(r, rule) })
			}
			setOptBool(v, "nonempty_txn_signature", f.NonemptyTxnSignature)
		})
		if encErr != nil {
			return nil, encErr
		}
	}
	for _, name := range sortedKeys(req.Slots) {
		f := req.Slots[name]
		putEntry(m, "slots", name, func(v protoreflect.Message) {
			setOptBool(v, "filter_by_commitment", f.FilterByCommitment)
			setOptBool(v, "interslot_updates", f.InterslotUpdates)
		})
	}
	for _, name := range sortedKeys(req.Transactions) {
		f := req.Transactions[name]
		putEntry(m, "transactions", name, func(v protoreflect.Message) { encodeTransactionFilter(v, f) })
	}
	for _, name := range sortedKeys(req.TransactionsStatus) {
		f := req.TransactionsStatus[name]
		putEntry(m, "transactions_status", name, func(v protoreflect.Message) { encodeTransactionFilter(v, f) })
	}
	for _, name := range sortedKeys(req.Blocks) {
		f := req.Blocks[name]
		putEntry(m, "blocks", name, func(v protoreflect.Message) {
			appendStrings(v, "account_include", f.AccountInclude)
			setOptBool(v, "include_transactions", f.IncludeTransactions)
			setOptBool(v, "include_accounts", f.IncludeAccounts)
			setOptBool(v, "include_entries", f.IncludeEntries)
		})
	}
	for _, name := range sortedKeys(req.BlocksMeta) {
		putEntry(m, "blocks_meta", name, func(protoreflect.Message) {})
	}
	for _, name := range sortedKeys(req.Entry) {
		putEntry(m, "entry", name, func(protoreflect.Message) {})
	}

	if req.Commitment != nil {
		m.Set(field(m, "commitment"), protoreflect.ValueOfEnum(protoreflect.EnumNumber(*req.Commitment)))
	}
	for _, ds := range req.AccountsDataSlice {
		appendMessage(m, "accounts_data_slice", func(v protoreflect.Message) {
			v.Set(field(v, "offset"), protoreflect.ValueOfUint64(ds.Offset))
			v.Set(field(v, "length"), protoreflect.ValueOfUint64(ds.Length))
		})
	}
	if req.Ping != nil {
		p := m.Mutable(field(m, "ping")).Message()
		p.Set(field(p, "id"), protoreflect.ValueOfInt32(req.Ping.ID))
	}
	if req.FromSlot != nil {
		m.Set(field(m, "from_slot"), protoreflect.ValueOfUint64(*req.FromSlot))
	}
	return m, nil
}

func encodeTransactionFilter(v protoreflect.Message, f stream.TransactionFilter) {
	setOptBool(v, "vote", f.Vote)
	setOptBool(v, "failed", f.Failed)
	if f.Signature != nil {
		v.Set(field(v, "signature"), protoreflect.ValueOfString(*f.Signature))
	}
	appendStrings(v, "account_include", f.AccountInclude)
	appendStrings(v, "account_exclude", f.AccountExclude)
	appendStrings(v, "account_required", f.AccountRequired)
}

func validateRule(rule stream.AccountFilterRule) error {
	set := 0
	if rule.Memcmp != nil {
		set++
	}
	if rule.DataSize != nil {
		set++
	}
	if rule.TokenAccountState != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("exactly one of memcmp, datasize, token_account_state required, got %d", set)
	}
	return nil
}

func encodeRule(r protoreflect.Message, rule stream.AccountFilterRule) {
	switch {
	case rule.Memcmp != nil:
		mc := r.Mutable(field(r, "memcmp")).Message()
		mc.Set(field(mc, "offset"), protoreflect.ValueOfUint64(rule.Memcmp.Offset))
		switch {
		case rule.Memcmp.Bytes != nil:
			mc.Set(field(mc, "bytes"), protoreflect.ValueOfBytes(rule.Memcmp.Bytes))
		case rule.Memcmp.Base64 != "":
			mc.Set(field(mc, "base64"), protoreflect.ValueOfString(rule.Memcmp.Base64))
		default:
			mc.Set(field(mc, "base58"), protoreflect.ValueOfString(rule.Memcmp.Base58))
		}
	case rule.DataSize != nil:
		r.Set(field(r, "datasize"), protoreflect.ValueOfUint64(*rule.DataSize))
	case rule.TokenAccountState != nil:
		r.Set(field(r, "token_account_state"), protoreflect.ValueOfBool(*rule.TokenAccountState))
	}
}

func field(m protoreflect.Message, name string) protoreflect.FieldDescriptor {
	fd := m.Descriptor().Fields().ByName(protoreflect.Name(name))
	if fd == nil {
		panic(fmt.Sprintf("geyser: %s has no field %s", m.Descriptor().FullName(), name))
	}
	return fd
}

func putEntry(m protoreflect.Message, name, key string, fill func(protoreflect.Message)) {
	mp := m.Mutable(field(m, name)).Map()
	v := mp.NewValue()
	fill(v.Message())
	mp.Set(protoreflect.ValueOfString(key).MapKey(), v)
}

func appendMessage(m protoreflect.Message, name string, fill func(protoreflect.Message)) {
	l := m.Mutable(field(m, name)).List()
	v := l.NewElement()
	fill(v.Message())
	l.Append(v)
}

func appendStrings(m protoreflect.Message, name string, values []string) {
	if len(values) == 0 {
		return
	}
	l := m.Mutable(field(m, name)).List()
	for _, s := range values {
		l.Append(protoreflect.ValueOfString(s))
	}
}

func setOptBool(m protoreflect.Message, name string, v *bool) {
	if v != nil {
		m.Set(field(m, name), protoreflect.ValueOfBool(*v))
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// decodeMessage converts m into the tree handed to the stream manager. Keys
// are the lowerCamelCase JSON names, bytes stay raw, enums become their
// names, and unset sub-messages and oneof members are omitted.
func decodeMessage(m protoreflect.Message) map[string]any {
	out := make(map[string]any)
	fields := m.Descriptor().Fields()
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		if !m.Has(fd) && (fd.ContainingOneof() != nil || isSingularMessage(fd)) {
			continue
		}
		out[fd.JSONName()] = decodeValue(fd, m.Get(fd))
	}
	return out
}

func isSingularMessage(fd protoreflect.FieldDescriptor) bool {
	return fd.Message() != nil && !fd.IsList() && !fd.IsMap()
}

func decodeValue(fd protoreflect.FieldDescriptor, v protoreflect.Value) any {
	switch {
	case fd.IsList():
		l := v.List()
		out := make([]any, l.Len())
		for i := 0; i < l.Len(); i++ {
			out[i] = decodeSingular(fd, l.Get(i))
		}
		return out
	case fd.IsMap():
		out := make(map[string]any)
		v.Map().Range(func(k protoreflect.MapKey, mv protoreflect.Value) bool {
			out[k.String()] = decodeSingular(fd.MapValue(), mv)
			return true
		})
		return out
	default:
		return decodeSingular(fd, v)
	}
}

func decodeSingular(fd protoreflect.FieldDescriptor, v protoreflect.Value) any {
	switch fd.Kind() {
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return decodeMessage(v.Message())
	case protoreflect.EnumKind:
		if ev := fd.Enum().Values().ByNumber(v.Enum()); ev != nil {
			return string(ev.Name())
		}
		return int32(v.Enum())
	case protoreflect.BytesKind:
		return v.Bytes()
	default:
		return v.Interface()
	}
}
