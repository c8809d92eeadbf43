package geyser

import (
	"fmt"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
)

// The Geyser wire schema is built at init from a descriptor that mirrors the
// field numbers of geyser.proto. Only the parts this client reads or writes
// are declared; everything else is kept as unknown fields by dynamicpb.
//
// Like geyser.proto the file is proto3: enums are open, so a slot status added
// by a newer server decodes as its number, and fields declared optional there
// keep explicit presence through synthetic oneofs.

const protoPackage = "geyser"

var (
	requestDescriptor protoreflect.MessageDescriptor
	updateDescriptor  protoreflect.MessageDescriptor
)

func init() {
	fd, err := protodesc.NewFile(geyserFile(), nil)
	if err != nil {
		panic(fmt.Sprintf("geyser: build descriptor: %v", err))
	}
	requestDescriptor = fd.Messages().ByName("SubscribeRequest")
	updateDescriptor = fd.Messages().ByName("SubscribeUpdate")
}

type fieldType = descriptorpb.FieldDescriptorProto_Type

const (
	tString  = descriptorpb.FieldDescriptorProto_TYPE_STRING
	tBytes   = descriptorpb.FieldDescriptorProto_TYPE_BYTES
	tBool    = descriptorpb.FieldDescriptorProto_TYPE_BOOL
	tUint64  = descriptorpb.FieldDescriptorProto_TYPE_UINT64
	tInt64   = descriptorpb.FieldDescriptorProto_TYPE_INT64
	tInt32   = descriptorpb.FieldDescriptorProto_TYPE_INT32
	tMessage = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
	tEnum    = descriptorpb.FieldDescriptorProto_TYPE_ENUM
)

func scalar(name string, num int32, typ fieldType) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(num),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
}

// optional marks f as a proto3 optional field. finishOptionals declares the
// synthetic oneof it belongs to.
func optional(f *descriptorpb.FieldDescriptorProto) *descriptorpb.FieldDescriptorProto {
	f.Proto3Optional = proto.Bool(true)
	return f
}

// finishOptionals appends one synthetic oneof per optional field of m and its
// nested types. Synthetic oneofs must follow the real ones.
func finishOptionals(m *descriptorpb.DescriptorProto) {
	for _, f := range m.Field {
		if !f.GetProto3Optional() {
			continue
		}
		f.OneofIndex = proto.Int32(int32(len(m.OneofDecl)))
		m.OneofDecl = append(m.OneofDecl, &descriptorpb.OneofDescriptorProto{Name: proto.String("_" + f.GetName())})
	}
	for _, nested := range m.NestedType {
		finishOptionals(nested)
	}
}

func ref(name string, num int32, typ fieldType, typeName string) *descriptorpb.FieldDescriptorProto {
	f := scalar(name, num, typ)
	f.TypeName = proto.String("." + protoPackage + "." + typeName)
	return f
}

func message(name string, num int32, typeName string) *descriptorpb.FieldDescriptorProto {
	return ref(name, num, tMessage, typeName)
}

func repeated(f *descriptorpb.FieldDescriptorProto) *descriptorpb.FieldDescriptorProto {
	f.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	return f
}

func oneof(index int32, f *descriptorpb.FieldDescriptorProto) *descriptorpb.FieldDescriptorProto {
	f.OneofIndex = proto.Int32(index)
	return f
}

func msg(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
}

// withOneofs declares oneof groups on m, in OneofIndex order.
func withOneofs(m *descriptorpb.DescriptorProto, names ...string) *descriptorpb.DescriptorProto {
	for _, n := range names {
		m.OneofDecl = append(m.OneofDecl, &descriptorpb.OneofDescriptorProto{Name: proto.String(n)})
	}
	return m
}

// withMap adds map<string, valueType> field name = num to m.
func withMap(m *descriptorpb.DescriptorProto, name string, num int32, valueType string) *descriptorpb.DescriptorProto {
	entry := mapEntryName(name)
	m.NestedType = append(m.NestedType, &descriptorpb.DescriptorProto{
		Name: proto.String(entry),
		Field: []*descriptorpb.FieldDescriptorProto{
			scalar("key", 1, tString),
			message("value", 2, valueType),
		},
		Options: &descriptorpb.MessageOptions{MapEntry: proto.Bool(true)},
	})
	m.Field = append(m.Field, repeated(message(name, num, m.GetName()+"."+entry)))
	return m
}

// mapEntryName returns the synthetic entry message name protoc uses for a
// map field, e.g. transactions_status -> TransactionsStatusEntry.
func mapEntryName(field string) string {
	var b strings.Builder
	for _, part := range strings.Split(field, "_") {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	b.WriteString("Entry")
	return b.String()
}

func enumType(name string, values ...string) *descriptorpb.EnumDescriptorProto {
	e := &descriptorpb.EnumDescriptorProto{Name: proto.String(name)}
	for i, v := range values {
		e.Value = append(e.Value, &descriptorpb.EnumValueDescriptorProto{
			Name:   proto.String(v),
			Number: proto.Int32(int32(i)),
		})
	}
	return e
}

func geyserFile() *descriptorpb.FileDescriptorProto {
	request := msg("SubscribeRequest",
		optional(ref("commitment", 6, tEnum, "CommitmentLevel")),
		repeated(message("accounts_data_slice", 7, "SubscribeRequestAccountsDataSlice")),
		message("ping", 9, "SubscribeRequestPing"),
		optional(scalar("from_slot", 11, tUint64)),
	)
	withMap(request, "accounts", 1, "SubscribeRequestFilterAccounts")
	withMap(request, "slots", 2, "SubscribeRequestFilterSlots")
	withMap(request, "transactions", 3, "SubscribeRequestFilterTransactions")
	withMap(request, "blocks", 4, "SubscribeRequestFilterBlocks")
	withMap(request, "blocks_meta", 5, "SubscribeRequestFilterBlocksMeta")
	withMap(request, "entry", 8, "SubscribeRequestFilterEntry")
	withMap(request, "transactions_status", 10, "SubscribeRequestFilterTransactions")

	update := withOneofs(msg("SubscribeUpdate",
		repeated(scalar("filters", 1, tString)),
		oneof(0, message("account", 2, "SubscribeUpdateAccount")),
		oneof(0, message("slot", 3, "SubscribeUpdateSlot")),
		oneof(0, message("transaction", 4, "SubscribeUpdateTransaction")),
		oneof(0, message("block", 5, "SubscribeUpdateBlock")),
		oneof(0, message("ping", 6, "SubscribeUpdatePing")),
		oneof(0, message("block_meta", 7, "SubscribeUpdateBlockMeta")),
		oneof(0, message("entry", 8, "SubscribeUpdateEntry")),
		oneof(0, message("pong", 9, "SubscribeUpdatePong")),
		oneof(0, message("transaction_status", 10, "SubscribeUpdateTransactionStatus")),
		message("created_at", 11, "Timestamp"),
	), "update_oneof")

	file := &descriptorpb.FileDescriptorProto{
		Name:    proto.String("sonic-stream/geyser.proto"),
		Package: proto.String(protoPackage),
		Syntax:  proto.String("proto3"),
		EnumType: []*descriptorpb.EnumDescriptorProto{
			enumType("CommitmentLevel", "PROCESSED", "CONFIRMED", "FINALIZED"),
			enumType("SlotStatus",
				"SLOT_PROCESSED", "SLOT_CONFIRMED", "SLOT_FINALIZED",
				"SLOT_FIRST_SHRED_RECEIVED", "SLOT_COMPLETED", "SLOT_CREATED_BANK", "SLOT_DEAD"),
		},
		MessageType: []*descriptorpb.DescriptorProto{
			request,
			msg("SubscribeRequestFilterAccounts",
				repeated(scalar("account", 2, tString)),
				repeated(scalar("owner", 3, tString)),
				repeated(message("filters", 4, "SubscribeRequestFilterAccountsFilter")),
				optional(scalar("nonempty_txn_signature", 5, tBool)),
			),
			withOneofs(msg("SubscribeRequestFilterAccountsFilter",
				oneof(0, message("memcmp", 1, "SubscribeRequestFilterAccountsFilterMemcmp")),
				oneof(0, scalar("datasize", 2, tUint64)),
				oneof(0, scalar("token_account_state", 3, tBool)),
			), "filter"),
			withOneofs(msg("SubscribeRequestFilterAccountsFilterMemcmp",
				scalar("offset", 1, tUint64),
				oneof(0, scalar("bytes", 2, tBytes)),
				oneof(0, scalar("base58", 3, tString)),
				oneof(0, scalar("base64", 4, tString)),
			), "data"),
			msg("SubscribeRequestFilterSlots",
				optional(scalar("filter_by_commitment", 1, tBool)),
				optional(scalar("interslot_updates", 2, tBool)),
			),
			msg("SubscribeRequestFilterTransactions",
				optional(scalar("vote", 1, tBool)),
				optional(scalar("failed", 2, tBool)),
				repeated(scalar("account_include", 3, tString)),
				repeated(scalar("account_exclude", 4, tString)),
				optional(scalar("signature", 5, tString)),
				repeated(scalar("account_required", 6, tString)),
			),
			msg("SubscribeRequestFilterBlocks",
				repeated(scalar("account_include", 1, tString)),
				optional(scalar("include_transactions", 2, tBool)),
				optional(scalar("include_accounts", 3, tBool)),
				optional(scalar("include_entries", 4, tBool)),
			),
			msg("SubscribeRequestFilterBlocksMeta"),
			msg("SubscribeRequestFilterEntry"),
			msg("SubscribeRequestAccountsDataSlice",
				scalar("offset", 1, tUint64),
				scalar("length", 2, tUint64),
			),
			msg("SubscribeRequestPing", scalar("id", 1, tInt32)),

			update,
			msg("SubscribeUpdateAccount",
				message("account", 1, "SubscribeUpdateAccountInfo"),
				scalar("slot", 2, tUint64),
				scalar("is_startup", 3, tBool),
			),
			msg("SubscribeUpdateAccountInfo",
				scalar("pubkey", 1, tBytes),
				scalar("lamports", 2, tUint64),
				scalar("owner", 3, tBytes),
				scalar("executable", 4, tBool),
				scalar("rent_epoch", 5, tUint64),
				scalar("data", 6, tBytes),
				scalar("write_version", 7, tUint64),
				optional(scalar("txn_signature", 8, tBytes)),
			),
			msg("SubscribeUpdateSlot",
				scalar("slot", 1, tUint64),
				optional(scalar("parent", 2, tUint64)),
				ref("status", 3, tEnum, "SlotStatus"),
				optional(scalar("dead_error", 4, tString)),
			),
			msg("SubscribeUpdateTransaction",
				message("transaction", 1, "SubscribeUpdateTransactionInfo"),
				scalar("slot", 2, tUint64),
			),
			msg("SubscribeUpdateTransactionInfo",
				scalar("signature", 1, tBytes),
				scalar("is_vote", 2, tBool),
				message("transaction", 3, "Transaction"),
				message("meta", 4, "TransactionStatusMeta"),
				scalar("index", 5, tUint64),
			),
			msg("SubscribeUpdateTransactionStatus",
				scalar("slot", 1, tUint64),
				scalar("signature", 2, tBytes),
				scalar("is_vote", 3, tBool),
				scalar("index", 4, tUint64),
				message("err", 5, "TransactionError"),
			),
			msg("SubscribeUpdateBlock",
				scalar("slot", 1, tUint64),
				scalar("blockhash", 2, tString),
				message("block_time", 4, "UnixTimestamp"),
				message("block_height", 5, "BlockHeight"),
				repeated(message("transactions", 6, "SubscribeUpdateTransactionInfo")),
				scalar("parent_slot", 7, tUint64),
				scalar("parent_blockhash", 8, tString),
				scalar("executed_transaction_count", 9, tUint64),
				scalar("updated_account_count", 10, tUint64),
				repeated(message("accounts", 11, "SubscribeUpdateAccountInfo")),
				scalar("entries_count", 12, tUint64),
			),
			msg("SubscribeUpdateBlockMeta",
				scalar("slot", 1, tUint64),
				scalar("blockhash", 2, tString),
				message("block_time", 4, "UnixTimestamp"),
				message("block_height", 5, "BlockHeight"),
				scalar("parent_slot", 6, tUint64),
				scalar("parent_blockhash", 7, tString),
				scalar("executed_transaction_count", 8, tUint64),
				scalar("entries_count", 9, tUint64),
			),
			msg("SubscribeUpdateEntry",
				scalar("slot", 1, tUint64),
				scalar("index", 2, tUint64),
				scalar("num_hashes", 3, tUint64),
				scalar("hash", 4, tBytes),
				scalar("executed_transaction_count", 5, tUint64),
				scalar("starting_transaction_index", 6, tUint64),
			),
			msg("SubscribeUpdatePing"),
			msg("SubscribeUpdatePong", scalar("id", 1, tInt32)),

			msg("Timestamp",
				scalar("seconds", 1, tInt64),
				scalar("nanos", 2, tInt32),
			),
			msg("UnixTimestamp", scalar("timestamp", 1, tInt64)),
			msg("BlockHeight", scalar("block_height", 1, tUint64)),
			msg("TransactionError", scalar("err", 1, tBytes)),
			msg("Transaction",
				repeated(scalar("signatures", 1, tBytes)),
				message("message", 2, "Message"),
			),
			msg("Message",
				repeated(scalar("account_keys", 2, tBytes)),
				scalar("recent_blockhash", 3, tBytes),
				scalar("versioned", 5, tBool),
			),
			msg("TransactionStatusMeta",
				message("err", 1, "TransactionError"),
				scalar("fee", 2, tUint64),
				repeated(scalar("pre_balances", 3, tUint64)),
				repeated(scalar("post_balances", 4, tUint64)),
				repeated(scalar("log_messages", 6, tString)),
				repeated(scalar("loaded_writable_addresses", 12, tBytes)),
				repeated(scalar("loaded_readonly_addresses", 13, tBytes)),
				scalar("compute_units_consumed", 16, tUint64),
			),
		},
	}
	for _, m := range file.MessageType {
		finishOptionals(m)
	}
	return file
}
