package auth

import (
	"context"
	"errors"
	"strings"
)

// ErrForbidden is returned when a request names a user other than the caller.
var ErrForbidden = errors.New("userId does not match the authenticated user")

// Caller is the authenticated identity attached to a request.
type Caller struct {
	UserID     string
	WhopUserID string
	Via        string // "session" or "whop_token"
}

type callerKey struct{}

// WithCaller returns a context carrying c.
func WithCaller(ctx context.Context, c *Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the caller attached by the middleware, if any.
func CallerFrom(ctx context.Context) (*Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(*Caller)
	return c, ok && c != nil
}

// ResolveUserID returns the Whop user id a request acts as. With no
// authenticated caller the requested id is used as-is. With a caller, an
// empty request defaults to the caller and a different id is forbidden.
func ResolveUserID(ctx context.Context, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	c, ok := CallerFrom(ctx)
	if !ok {
		return requested, nil
	}
	if requested == "" {
		return c.WhopUserID, nil
	}
	if requested != c.WhopUserID {
		return "", ErrForbidden
	}
	return requested, nil
}
