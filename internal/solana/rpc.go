package solana

import "context"

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// RPCClient defines the Solana HTTP RPC calls used for startup snapshots and
// health checks.
type RPCClient interface {
	// GetAccountInfo returns nil, nil when the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetBalance returns the account balance in lamports.
	GetBalance(ctx context.Context, pubkey string) (uint64, error)

	// GetSlot returns the slot the node has reached.
	GetSlot(ctx context.Context) (uint64, error)
}

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Pubkey     string
	Lamports   uint64
	Owner      string
	Data       []byte
	Executable bool
	RentEpoch  uint64
	Space      uint64
	// Slot is the context slot the account was read at.
	Slot uint64
}
