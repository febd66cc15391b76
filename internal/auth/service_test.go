package auth

import (
	"errors"
	"testing"
	"time"
)

func TestRegisterAuthenticateAndAttachVendor(t *testing.T) {
	service := NewService(BuildBootstrapRoleMap("", "", ""), nil)

	user, err := service.Register(" Buyer@Example.com ", "strong-password")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if user.Role != RoleBuyer || user.Email != "buyer@example.com" {
		t.Fatalf("unexpected user %+v", user)
	}

	if _, err := service.Register("buyer@example.com", "strong-password"); !errors.Is(err, ErrEmailInUse) {
		t.Fatalf("expected ErrEmailInUse, got %v", err)
	}
	if _, err := service.Register("not-an-email", "strong-password"); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}

	authenticated, err := service.Authenticate("buyer@example.com", "strong-password")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if authenticated.ID != user.ID {
		t.Fatalf("expected user id %s got %s", user.ID, authenticated.ID)
	}
	if _, err := service.Authenticate("buyer@example.com", "bad"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	updated, err := service.AttachVendor(user.ID, "ven_123")
	if err != nil {
		t.Fatalf("AttachVendor() error = %v", err)
	}
	if updated.Role != RoleVendorOwner {
		t.Fatalf("expected vendor_owner role, got %s", updated.Role)
	}
	if updated.VendorID == nil || *updated.VendorID != "ven_123" {
		t.Fatalf("expected vendor id ven_123, got %+v", updated.VendorID)
	}
	if _, err := service.AttachVendor(user.ID, "ven_456"); !errors.Is(err, ErrVendorAlreadyLinked) {
		t.Fatalf("expected ErrVendorAlreadyLinked, got %v", err)
	}
}

func TestBootstrapRoles(t *testing.T) {
	service := NewService(BuildBootstrapRoleMap("admin@example.com", "help@example.com", "mod@example.com,admin@example.com"), nil)

	cases := map[string]Role{
		"admin@example.com": RoleSuperAdmin,
		"help@example.com":  RoleSupport,
		"mod@example.com":   RoleCatalogModerator,
	}
	for email, want := range cases {
		user, err := service.Register(email, "strong-password")
		if err != nil {
			t.Fatalf("Register(%s) error = %v", email, err)
		}
		if user.Role != want {
			t.Fatalf("expected %s for %s, got %s", want, email, user.Role)
		}
	}
}

func TestConsumeSession(t *testing.T) {
	service := NewService(nil, nil)
	user, err := service.Register("buyer@example.com", "strong-password")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	service.SaveSession(Session{
		ID:               "ses_1",
		UserID:           user.ID,
		RefreshTokenHash: HashToken("refresh-token"),
		ExpiresAt:        time.Now().UTC().Add(time.Hour),
	})

	if _, err := service.ConsumeSession("ses_1", user.ID, "other-token"); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid for wrong token, got %v", err)
	}
	consumed, err := service.ConsumeSession("ses_1", user.ID, "refresh-token")
	if err != nil {
		t.Fatalf("ConsumeSession() error = %v", err)
	}
	if consumed.ID != user.ID {
		t.Fatalf("expected user %s, got %s", user.ID, consumed.ID)
	}
	if _, err := service.ConsumeSession("ses_1", user.ID, "refresh-token"); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected reused session to fail, got %v", err)
	}

	service.SaveSession(Session{
		ID:               "ses_2",
		UserID:           user.ID,
		RefreshTokenHash: HashToken("old"),
		ExpiresAt:        time.Now().UTC().Add(-time.Minute),
	})
	if _, err := service.ConsumeSession("ses_2", user.ID, "old"); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if _, exists := service.GetSession("ses_2"); exists {
		t.Fatal("expected expired session to be removed")
	}
}

func TestSessionRotationAndRevocation(t *testing.T) {
	manager, err := NewTokenManager("test-secret", "marketplace-storefront", 15*time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager() error = %v", err)
	}
	service := NewService(nil, manager)
	user, err := service.Register("seller@example.com", "strong-password")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	first, err := service.StartSession(user)
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	second, err := service.StartSession(user)
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}

	refreshedUser, rotated, err := service.Refresh(first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if refreshedUser.ID != user.ID || rotated.RefreshToken == first.RefreshToken {
		t.Fatalf("unexpected refresh result %+v", refreshedUser)
	}
	if _, _, err := service.Refresh(first.RefreshToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected rotated token to be rejected, got %v", err)
	}
	if _, _, err := service.Refresh(first.AccessToken); !errors.Is(err, ErrInvalidTokenType) {
		t.Fatalf("expected access token to be rejected, got %v", err)
	}

	sessionID, ok := service.SessionForRefreshToken(second.RefreshToken)
	if !ok {
		t.Fatal("expected session for second refresh token")
	}
	if _, exists := service.GetSession(sessionID); !exists {
		t.Fatalf("expected session %s to be open", sessionID)
	}

	if revoked := service.RevokeUserSessions(user.ID); revoked != 2 {
		t.Fatalf("expected 2 revoked sessions, got %d", revoked)
	}
	if _, _, err := service.Refresh(second.RefreshToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected revoked session to fail, got %v", err)
	}
	if revoked := service.RevokeUserSessions(user.ID); revoked != 0 {
		t.Fatalf("expected nothing left to revoke, got %d", revoked)
	}
}

func TestAuthenticateUnknownEmail(t *testing.T) {
	service := NewService(nil, nil)
	if _, err := service.Authenticate("nobody@example.com", "strong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := service.Register("Display Name <someone@example.com>", "strong-password"); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail for display-name form, got %v", err)
	}
}
