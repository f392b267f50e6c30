// ABOUTME: Account identity propagation through request handlers
// ABOUTME: Provides WithAccount/AccountFromContext for context-based identity

package auth

import (
	"context"
)

// accountKey is the key type for storing the account ID in context.Context.
type accountKey struct{}

// WithAccount returns a new context with the account ID attached.
func WithAccount(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountKey{}, accountID)
}

// AccountFromContext retrieves the account ID from the context,
// returning the empty string if not present.
func AccountFromContext(ctx context.Context) string {
	val := ctx.Value(accountKey{})
	if val == nil {
		return ""
	}
	accountID, ok := val.(string)
	if !ok {
		return ""
	}
	return accountID
}
