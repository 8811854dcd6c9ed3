package models

import "context"

type callbackContextKey struct{}

// CallbackContext carries request-level data about an inbound provider
// callback so ledger backends can attach it as transaction metadata without
// widening the BalanceLedger interface.
type CallbackContext struct {
	RequestId  string // boundary-assigned request id
	Provider   string
	RemoteAddr string
	Source     string // "http", "kafka", "cli"
}

// WithCallbackContext attaches callback data to a context.
func WithCallbackContext(ctx context.Context, cc *CallbackContext) context.Context {
	return context.WithValue(ctx, callbackContextKey{}, cc)
}

// GetCallbackContext retrieves callback data from context, or nil if absent.
func GetCallbackContext(ctx context.Context) *CallbackContext {
	cc, _ := ctx.Value(callbackContextKey{}).(*CallbackContext)
	return cc
}
