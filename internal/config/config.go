package config

import "time"

// Transport kinds.
const (
	TransportGRPC      = "grpc"
	TransportWebSocket = "ws"
)

// Storage drivers.
const (
	StorageNone       = "none"
	StorageMemory     = "memory"
	StoragePostgres   = "postgres"
	StorageClickhouse = "clickhouse"
)

// Config is the root configuration for a subscriber.
type Config struct {
	Transport    TransportConfig    `yaml:"transport"`
	Stream       StreamConfig       `yaml:"stream"`
	Subscription SubscriptionConfig `yaml:"subscription"`
	Storage      StorageConfig      `yaml:"storage"`
	RPC          RPCConfig          `yaml:"rpc"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

// TransportConfig selects and configures the update source.
type TransportConfig struct {
	Kind     string `yaml:"kind"`     // grpc or ws
	Endpoint string `yaml:"endpoint"` // https://host:port for grpc, wss://host for ws
	Token    string `yaml:"token"`    // x-token for grpc

	MaxRecvMsgSize   int           `yaml:"max_recv_msg_size"`
	KeepaliveTime    time.Duration `yaml:"keepalive_time"`
	KeepaliveTimeout time.Duration `yaml:"keepalive_timeout"`

	WS WSConfig `yaml:"ws"`
}

// WSConfig holds websocket transport timeouts.
type WSConfig struct {
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	SubscribeTimeout time.Duration `yaml:"subscribe_timeout"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
}

// StreamConfig holds reconnection and keep-alive settings.
type StreamConfig struct {
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
	MaxBackoffStep       int           `yaml:"max_backoff_step"`
	PingInterval         time.Duration `yaml:"ping_interval"`
}

// SubscriptionConfig mirrors the subscribe request. Map keys are filter names.
type SubscriptionConfig struct {
	Commitment         string                             `yaml:"commitment"`
	Accounts           map[string]AccountFilterConfig     `yaml:"accounts"`
	Slots              map[string]SlotFilterConfig        `yaml:"slots"`
	Transactions       map[string]TransactionFilterConfig `yaml:"transactions"`
	TransactionsStatus map[string]TransactionFilterConfig `yaml:"transactions_status"`
	Blocks             map[string]BlockFilterConfig       `yaml:"blocks"`
	BlocksMeta         []string                           `yaml:"blocks_meta"`
	Entry              []string                           `yaml:"entry"`
	AccountsDataSlice  []DataSliceConfig                  `yaml:"accounts_data_slice"`
	FromSlot           *uint64                            `yaml:"from_slot"`
}

// AccountFilterConfig selects accounts by address or owner.
type AccountFilterConfig struct {
	Account              []string                  `yaml:"account"`
	Owner                []string                  `yaml:"owner"`
	Filters              []AccountFilterRuleConfig `yaml:"filters"`
	NonemptyTxnSignature *bool                     `yaml:"nonempty_txn_signature"`
}

// AccountFilterRuleConfig is one data filter. Exactly one field must be set.
type AccountFilterRuleConfig struct {
	Memcmp            *MemcmpConfig `yaml:"memcmp"`
	DataSize          *uint64       `yaml:"datasize"`
	TokenAccountState *bool         `yaml:"token_account_state"`
}

// MemcmpConfig matches data at Offset. Exactly one of Base58 and Base64 must be set.
type MemcmpConfig struct {
	Offset uint64 `yaml:"offset"`
	Base58 string `yaml:"base58"`
	Base64 string `yaml:"base64"`
}

type SlotFilterConfig struct {
	FilterByCommitment *bool `yaml:"filter_by_commitment"`
	InterslotUpdates   *bool `yaml:"interslot_updates"`
}

type TransactionFilterConfig struct {
	Vote            *bool    `yaml:"vote"`
	Failed          *bool    `yaml:"failed"`
	Signature       *string  `yaml:"signature"`
	AccountInclude  []string `yaml:"account_include"`
	AccountExclude  []string `yaml:"account_exclude"`
	AccountRequired []string `yaml:"account_required"`
}

type BlockFilterConfig struct {
	AccountInclude      []string `yaml:"account_include"`
	IncludeTransactions *bool    `yaml:"include_transactions"`
	IncludeAccounts     *bool    `yaml:"include_accounts"`
	IncludeEntries      *bool    `yaml:"include_entries"`
}

type DataSliceConfig struct {
	Offset uint64 `yaml:"offset"`
	Length uint64 `yaml:"length"`
}

// StorageConfig selects where updates are persisted.
type StorageConfig struct {
	Driver     string           `yaml:"driver"` // none, memory, postgres, clickhouse
	Timeout    time.Duration    `yaml:"timeout"`
	Migrate    *bool            `yaml:"migrate"` // apply embedded migrations at startup
	Postgres   PostgresConfig   `yaml:"postgres"`
	Clickhouse ClickhouseConfig `yaml:"clickhouse"`
}

type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns"`
}

type ClickhouseConfig struct {
	DSN string `yaml:"dsn"`
}

// RPCConfig configures the HTTP JSON-RPC client used for the startup snapshot.
type RPCConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	Snapshot   bool          `yaml:"snapshot"`
}

// MetricsConfig holds the metrics and health HTTP server settings.
type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}
