package stub

import (
	"context"

	"sonic-stream/internal/solana"
)

// RPCClient implements solana.RPCClient for testing.
type RPCClient struct {
	Accounts map[string]*solana.AccountInfo
	Slot     uint64
	// Err, when set, is returned by every call.
	Err error
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Accounts: make(map[string]*solana.AccountInfo),
	}
}

// GetAccountInfo returns the stored account or nil when absent.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	if c.Err != nil {
		return nil, c.Err
	}
	info, ok := c.Accounts[pubkey]
	if !ok {
		return nil, nil
	}
	cp := *info
	cp.Pubkey = pubkey
	return &cp, nil
}

// GetBalance returns the lamports of the stored account, zero when absent.
func (c *RPCClient) GetBalance(_ context.Context, pubkey string) (uint64, error) {
	if c.Err != nil {
		return 0, c.Err
	}
	if info, ok := c.Accounts[pubkey]; ok {
		return info.Lamports, nil
	}
	return 0, nil
}

// GetSlot returns Slot.
func (c *RPCClient) GetSlot(_ context.Context) (uint64, error) {
	if c.Err != nil {
		return 0, c.Err
	}
	return c.Slot, nil
}

// AddAccount adds an account to the stub store.
func (c *RPCClient) AddAccount(info *solana.AccountInfo) {
	c.Accounts[info.Pubkey] = info
}

var _ solana.RPCClient = (*RPCClient)(nil)
