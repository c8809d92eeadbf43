package domain

// AccountUpdate is one observed state of an account.
// Unique key: (Pubkey, Slot, WriteVersion).
type AccountUpdate struct {
	Pubkey       string   // base-58 account address
	Owner        string   // base-58 owner program
	Lamports     uint64   // balance in lamports
	Executable   bool     // account holds a program
	RentEpoch    uint64   // next epoch rent is due
	Data         []byte   // raw account data (possibly a data slice)
	WriteVersion uint64   // validator write version, 0 when unknown
	Slot         uint64   // slot the state was observed at
	TxnSignature string   // base-58 signature of the writing transaction, empty when unknown
	IsStartup    bool     // part of a startup snapshot rather than a live write
	OnCurve      bool     // pubkey is an ed25519 point (false for program derived addresses)
	Filters      []string // names of the subscription filters that matched
	Source       Source   // transport the update arrived on
	ReceivedAt   int64    // Unix timestamp in milliseconds
}

// DataLen returns the length of the account data.
func (u *AccountUpdate) DataLen() int {
	return len(u.Data)
}

// SlotUpdate is a slot status change.
// Unique key: (Slot, Status).
type SlotUpdate struct {
	Slot       uint64
	Parent     uint64 // 0 when unknown
	Status     string // SLOT_PROCESSED, SLOT_CONFIRMED, ...
	Filters    []string
	Source     Source
	ReceivedAt int64 // Unix timestamp in milliseconds
}
