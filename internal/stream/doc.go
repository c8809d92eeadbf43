// Package stream implements a self-healing subscription client for Sonic/Solana
// streaming endpoints.
//
// A Manager owns at most one Session at a time. It writes the caller's
// SubscriptionRequest on every (re)connect, sends keep-alive pings while the
// session is live, normalizes binary fields of inbound updates to base-58 and
// hands them to a Handler. Stream errors, end-of-stream and close events all
// lead to a bounded, linearly backed-off reconnect. Stop is the only way to
// end a subscription without exhausting the retry budget.
package stream
