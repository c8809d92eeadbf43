package solana

import (
	"context"
	"fmt"

	"github.com/mr-tron/base58"
)

// Snapshot reads pubkeys over RPC and returns one startup update per existing
// account, in the same layout as streamed account updates. Missing accounts
// are skipped.
func Snapshot(ctx context.Context, client RPCClient, filter string, pubkeys []string) ([]map[string]any, error) {
	updates := make([]map[string]any, 0, len(pubkeys))
	for _, pubkey := range pubkeys {
		info, err := client.GetAccountInfo(ctx, pubkey)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", pubkey, err)
		}
		if info == nil {
			continue
		}
		u, err := accountUpdate([]string{filter}, info, true)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", pubkey, err)
		}
		updates = append(updates, u)
	}
	return updates, nil
}

// accountUpdate builds {filters, account: {account: {...}, slot, isStartup}}
// with binary fields as raw bytes.
func accountUpdate(filters []string, info *AccountInfo, isStartup bool) (map[string]any, error) {
	pubkey, err := base58.Decode(info.Pubkey)
	if err != nil {
		return nil, fmt.Errorf("decode pubkey %q: %w", info.Pubkey, err)
	}
	owner, err := base58.Decode(info.Owner)
	if err != nil {
		return nil, fmt.Errorf("decode owner %q: %w", info.Owner, err)
	}
	data := info.Data
	if data == nil {
		data = []byte{}
	}

	return map[string]any{
		"filters": filterList(filters),
		"account": map[string]any{
			"account": map[string]any{
				"pubkey":       pubkey,
				"lamports":     info.Lamports,
				"owner":        owner,
				"executable":   info.Executable,
				"rentEpoch":    info.RentEpoch,
				"data":         data,
				"writeVersion": uint64(0),
			},
			"slot":      info.Slot,
			"isStartup": isStartup,
		},
	}, nil
}

func filterList(filters []string) []any {
	out := make([]any, len(filters))
	for i, f := range filters {
		out[i] = f
	}
	return out
}
