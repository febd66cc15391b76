package auth

import (
	"context"
	"errors"
	"testing"
)

func TestIdentityContext(t *testing.T) {
	if _, err := RequireIdentity(context.Background()); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if _, ok := IdentityFromContext(WithIdentity(context.Background(), Identity{})); ok {
		t.Fatal("expected identity without user id to be ignored")
	}

	vendorID := "ven_1"
	ctx := WithIdentity(context.Background(), Identity{UserID: "usr_1", Role: RoleVendorOwner, VendorID: &vendorID})
	identity, err := RequireIdentity(ctx)
	if err != nil {
		t.Fatalf("RequireIdentity() error = %v", err)
	}
	if identity.LinkedVendor() != vendorID || !identity.OwnsVendor(vendorID) || identity.OwnsVendor("") {
		t.Fatalf("unexpected vendor link for %+v", identity)
	}
	if !identity.Can(PermissionManageVendorProducts) || identity.Can(PermissionModerateProducts) {
		t.Fatalf("unexpected permissions for %s", identity.Role)
	}

	buyer := Identity{UserID: "usr_2", Role: RoleBuyer}
	if buyer.LinkedVendor() != "" || buyer.OwnsVendor("ven_1") {
		t.Fatalf("buyer should not own a vendor: %+v", buyer)
	}
}
