package config

import (
	"log"

	"sonic-stream/internal/geyser"
	"sonic-stream/internal/solana"
	"sonic-stream/internal/stream"
)

// SubscriptionRequest builds the subscribe request described by the
// subscription section.
func (c *Config) SubscriptionRequest() (*stream.SubscriptionRequest, error) {
	s := c.Subscription

	commitment, err := stream.ParseCommitment(s.Commitment)
	if err != nil {
		return nil, err
	}

	req := &stream.SubscriptionRequest{
		Accounts:           make(map[string]stream.AccountFilter, len(s.Accounts)),
		Slots:              make(map[string]stream.SlotFilter, len(s.Slots)),
		Transactions:       make(map[string]stream.TransactionFilter, len(s.Transactions)),
		TransactionsStatus: make(map[string]stream.TransactionFilter, len(s.TransactionsStatus)),
		Blocks:             make(map[string]stream.BlockFilter, len(s.Blocks)),
		BlocksMeta:         make(map[string]stream.BlockMetaFilter, len(s.BlocksMeta)),
		Entry:              make(map[string]stream.EntryFilter, len(s.Entry)),
		Commitment:         &commitment,
		FromSlot:           s.FromSlot,
	}

	for name, a := range s.Accounts {
		f := stream.AccountFilter{
			Account:              a.Account,
			Owner:                a.Owner,
			NonemptyTxnSignature: a.NonemptyTxnSignature,
		}
		for _, r := range a.Filters {
			rule := stream.AccountFilterRule{
				DataSize:          r.DataSize,
				TokenAccountState: r.TokenAccountState,
			}
			if r.Memcmp != nil {
				rule.Memcmp = &stream.MemcmpFilter{
					Offset: r.Memcmp.Offset,
					Base58: r.Memcmp.Base58,
					Base64: r.Memcmp.Base64,
				}
			}
			f.Filters = append(f.Filters, rule)
		}
		req.Accounts[name] = f
	}
	for name, sl := range s.Slots {
		req.Slots[name] = stream.SlotFilter{
			FilterByCommitment: sl.FilterByCommitment,
			InterslotUpdates:   sl.InterslotUpdates,
		}
	}
	for name, t := range s.Transactions {
		req.Transactions[name] = transactionFilter(t)
	}
	for name, t := range s.TransactionsStatus {
		req.TransactionsStatus[name] = transactionFilter(t)
	}
	for name, b := range s.Blocks {
		req.Blocks[name] = stream.BlockFilter{
			AccountInclude:      b.AccountInclude,
			IncludeTransactions: b.IncludeTransactions,
			IncludeAccounts:     b.IncludeAccounts,
			IncludeEntries:      b.IncludeEntries,
		}
	}
	for _, name := range s.BlocksMeta {
		req.BlocksMeta[name] = stream.BlockMetaFilter{}
	}
	for _, name := range s.Entry {
		req.Entry[name] = stream.EntryFilter{}
	}
	for _, ds := range s.AccountsDataSlice {
		req.AccountsDataSlice = append(req.AccountsDataSlice, stream.DataSlice{Offset: ds.Offset, Length: ds.Length})
	}

	return req, nil
}

func transactionFilter(t TransactionFilterConfig) stream.TransactionFilter {
	return stream.TransactionFilter{
		Vote:            t.Vote,
		Failed:          t.Failed,
		Signature:       t.Signature,
		AccountInclude:  t.AccountInclude,
		AccountExclude:  t.AccountExclude,
		AccountRequired: t.AccountRequired,
	}
}

// SnapshotAccounts returns the explicit account addresses of all account
// filters, keyed by filter name, for the startup snapshot.
func (c *Config) SnapshotAccounts() map[string][]string {
	out := make(map[string][]string)
	for name, a := range c.Subscription.Accounts {
		if len(a.Account) > 0 {
			out[name] = a.Account
		}
	}
	return out
}

// StreamConfig returns the manager configuration.
func (c *Config) StreamConfig(logger *log.Logger) stream.Config {
	return stream.Config{
		MaxReconnectAttempts: c.Stream.MaxReconnectAttempts,
		ReconnectInterval:    c.Stream.ReconnectInterval,
		MaxBackoffStep:       c.Stream.MaxBackoffStep,
		PingInterval:         c.Stream.PingInterval,
		Logger:               logger,
	}
}

// GeyserConfig returns the gRPC transport configuration.
func (c *Config) GeyserConfig() geyser.Config {
	return geyser.Config{
		Endpoint:         c.Transport.Endpoint,
		Token:            c.Transport.Token,
		MaxRecvMsgSize:   c.Transport.MaxRecvMsgSize,
		KeepaliveTime:    c.Transport.KeepaliveTime,
		KeepaliveTimeout: c.Transport.KeepaliveTimeout,
	}
}

// WSConfig returns the websocket transport configuration. The subscription
// commitment is used for requests that do not carry one.
func (c *Config) WSConfig(logger *log.Logger) *solana.WSConfig {
	return &solana.WSConfig{
		HandshakeTimeout: c.Transport.WS.HandshakeTimeout,
		SubscribeTimeout: c.Transport.WS.SubscribeTimeout,
		ReadTimeout:      c.Transport.WS.ReadTimeout,
		WriteTimeout:     c.Transport.WS.WriteTimeout,
		Commitment:       c.Subscription.Commitment,
		Logger:           logger,
	}
}
