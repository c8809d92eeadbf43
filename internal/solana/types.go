package solana

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"
)

// JSON-RPC 2.0 wire types shared by the HTTP client and the WebSocket transport.

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// rpcContext accompanies commitment-aware results and notifications.
type rpcContext struct {
	Slot uint64 `json:"slot"`
}

// accountValue is an account as returned with base64 encoding.
type accountValue struct {
	Lamports   uint64   `json:"lamports"`
	Owner      string   `json:"owner"`
	Data       []string `json:"data"` // [payload, encoding]
	Executable bool     `json:"executable"`
	RentEpoch  uint64   `json:"rentEpoch"`
	Space      uint64   `json:"space"`
}

func (v *accountValue) decodeData() ([]byte, error) {
	if len(v.Data) == 0 {
		return nil, nil
	}
	encoding := "base64"
	if len(v.Data) > 1 {
		encoding = v.Data[1]
	}
	switch encoding {
	case "base64":
		return base64.StdEncoding.DecodeString(v.Data[0])
	case "base58":
		return base58.Decode(v.Data[0])
	default:
		return nil, fmt.Errorf("unsupported account data encoding %q", encoding)
	}
}

// toInfo converts v into an AccountInfo observed at slot.
func (v *accountValue) toInfo(pubkey string, slot uint64) (*AccountInfo, error) {
	data, err := v.decodeData()
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", pubkey, err)
	}
	return &AccountInfo{
		Pubkey:     pubkey,
		Lamports:   v.Lamports,
		Owner:      v.Owner,
		Data:       data,
		Executable: v.Executable,
		RentEpoch:  v.RentEpoch,
		Space:      v.Space,
		Slot:       slot,
	}, nil
}
