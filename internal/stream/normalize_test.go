package stream

import (
	"bytes"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_AccountUpdate(t *testing.T) {
	pubkey := bytes.Repeat([]byte{7}, 32)
	owner := make([]byte, 32)
	data := []byte("hello sonic")

	msg := map[string]any{
		"account": map[string]any{
			"account": map[string]any{
				"pubkey":     pubkey,
				"owner":      owner,
				"lamports":   uint64(100),
				"executable": false,
				"data":       data,
			},
		},
	}

	p := NormalizePayload(msg)
	acct := p["account"].(map[string]any)["account"].(map[string]any)

	assert.Equal(t, base58.Encode(pubkey), acct["pubkey"])
	assert.Equal(t, "11111111111111111111111111111111", acct["owner"])
	assert.Equal(t, base58.Encode(data), acct["data"])
	assert.Equal(t, uint64(100), acct["lamports"])
	assert.Equal(t, false, acct["executable"])

	// Input is left untouched.
	raw := msg["account"].(map[string]any)["account"].(map[string]any)
	assert.Equal(t, pubkey, raw["pubkey"])
}

func TestNormalize_Sequences(t *testing.T) {
	sig1 := []byte{1, 2, 3}
	sig2 := []byte{4, 5, 6}

	got := Normalize(map[string]any{
		"signatures": []any{sig1, sig2},
		"keys":       [][]byte{sig1},
		"filters":    []string{"a", "b"},
		"nested":     []any{map[string]any{"hash": sig2}},
	}).(map[string]any)

	assert.Equal(t, []any{base58.Encode(sig1), base58.Encode(sig2)}, got["signatures"])
	assert.Equal(t, []any{base58.Encode(sig1)}, got["keys"])
	assert.Equal(t, []any{"a", "b"}, got["filters"])
	assert.Equal(t, []any{map[string]any{"hash": base58.Encode(sig2)}}, got["nested"])
}

func TestNormalize_ScalarsUnchanged(t *testing.T) {
	for _, v := range []any{nil, "text", true, 42, int64(-1), uint64(1 << 63), 3.5} {
		assert.Equal(t, v, Normalize(v))
	}
}

func TestNormalize_FixedArrays(t *testing.T) {
	var key [32]byte
	key[31] = 1

	got := Normalize(map[string]any{"key": key})
	assert.Equal(t, map[string]any{"key": base58.Encode(key[:])}, got)
}

func TestNormalize_TypedMapsKeepKeys(t *testing.T) {
	got := Normalize(map[string][]byte{"a": {0}, "B_c": {1}}).(map[string]any)

	require.Len(t, got, 2)
	assert.Equal(t, "1", got["a"])
	assert.Equal(t, "2", got["B_c"])
}

func TestNormalize_Deterministic(t *testing.T) {
	msg := map[string]any{
		"slot":  map[string]any{"slot": uint64(9), "parent": uint64(8)},
		"entry": map[string]any{"hash": bytes.Repeat([]byte{9}, 32)},
	}

	first := NormalizePayload(msg)
	second := NormalizePayload(msg)
	assert.Equal(t, first, second)

	// Normalizing an already normalized payload changes nothing.
	assert.Equal(t, first, NormalizePayload(map[string]any(first)))
}

func TestNormalize_EmptyBuffer(t *testing.T) {
	assert.Equal(t, "", Normalize([]byte{}))
	assert.Nil(t, NormalizePayload(nil)["missing"])
}
