package auth

import (
	"context"
	"errors"
)

var ErrUnauthenticated = errors.New("authentication required")

// Identity is the authenticated principal bound to request context.
type Identity struct {
	UserID    string
	Role      Role
	SessionID string
	VendorID  *string
}

// LinkedVendor returns the id of the vendor the account owns, or "".
func (i Identity) LinkedVendor() string {
	if i.VendorID == nil {
		return ""
	}
	return *i.VendorID
}

func (i Identity) OwnsVendor(vendorID string) bool {
	return vendorID != "" && i.LinkedVendor() == vendorID
}

func (i Identity) Can(permission Permission) bool {
	return IsAllowed(i.Role, permission)
}

type identityKey struct{}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(Identity)
	return identity, ok && identity.UserID != ""
}

// RequireIdentity is IdentityFromContext with a missing principal reported as
// ErrUnauthenticated.
func RequireIdentity(ctx context.Context) (Identity, error) {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return Identity{}, ErrUnauthenticated
	}
	return identity, nil
}
