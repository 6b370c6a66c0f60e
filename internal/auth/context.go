package auth

import "context"

type contextKey struct{}

// Identity is the acting user of a request. The zero value is anonymous.
type Identity struct {
	UserID    string
	Name      string
	Email     string
	Image     string
	SessionID int64
}

func (i Identity) Authenticated() bool {
	return i.UserID != ""
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

// Current returns the request identity, or the anonymous identity when none
// was attached.
func Current(ctx context.Context) Identity {
	id, _ := FromContext(ctx)
	return id
}

func UserID(ctx context.Context) string {
	return Current(ctx).UserID
}
