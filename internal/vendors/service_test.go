package vendors

import (
	"errors"
	"testing"
)

func TestRegisterAndVerificationState(t *testing.T) {
	service := NewService()

	created, err := service.Register("usr_1", "example-shop", "Example Shop")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if created.VerificationState != VerificationPending || created.CanSell() {
		t.Fatalf("expected pending state, got %s", created.VerificationState)
	}

	if _, err := service.Register("usr_1", "another", "Another"); !errors.Is(err, ErrOwnerAlreadyVendor) {
		t.Fatalf("expected ErrOwnerAlreadyVendor, got %v", err)
	}
	if _, err := service.Register("usr_2", "Example-Shop", "Another"); !errors.Is(err, ErrSlugInUse) {
		t.Fatalf("expected ErrSlugInUse, got %v", err)
	}
	if _, err := service.Register("usr_2", "bad slug!", "Another"); !errors.Is(err, ErrInvalidSlug) {
		t.Fatalf("expected ErrInvalidSlug, got %v", err)
	}

	updated, err := service.SetVerificationState(created.ID, VerificationVerified, "kyc complete")
	if err != nil {
		t.Fatalf("SetVerificationState() error = %v", err)
	}
	if !updated.CanSell() {
		t.Fatalf("expected verified vendor to be able to sell")
	}

	second, err := service.Register("usr_2", "second-shop", "")
	if err != nil {
		t.Fatalf("Register() second vendor error = %v", err)
	}
	if second.DisplayName != "second-shop" {
		t.Fatalf("expected slug as fallback display name, got %q", second.DisplayName)
	}
	if _, err := service.SetVerificationState(second.ID, VerificationRejected, ""); err != nil {
		t.Fatalf("SetVerificationState() second vendor error = %v", err)
	}
	if _, err := service.SetVerificationState(second.ID, "archived", ""); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}

	if all := service.List(nil); len(all) != 2 {
		t.Fatalf("expected two vendors in list, got %d", len(all))
	}

	verified := VerificationVerified
	verifiedVendors := service.List(&verified)
	if len(verifiedVendors) != 1 || verifiedVendors[0].ID != created.ID {
		t.Fatalf("expected only %s to be verified, got %#v", created.ID, verifiedVendors)
	}

	bySlug, ok := service.GetBySlug(" EXAMPLE-SHOP ")
	if !ok || bySlug.ID != created.ID {
		t.Fatalf("expected slug lookup to find %s", created.ID)
	}
}

func TestCommission(t *testing.T) {
	service := NewService()
	vendor, _ := service.Register("usr_1", "shop", "Shop")

	if _, err := service.SetCommission(vendor.ID, 10_001); !errors.Is(err, ErrInvalidCommission) {
		t.Fatalf("expected ErrInvalidCommission, got %v", err)
	}
	updated, err := service.SetCommission(vendor.ID, 850)
	if err != nil {
		t.Fatalf("SetCommission() error = %v", err)
	}
	if updated.CommissionOverrideBPS == nil || *updated.CommissionOverrideBPS != 850 {
		t.Fatalf("expected commission 850, got %v", updated.CommissionOverrideBPS)
	}
	if _, err := service.SetCommission("ven_missing", 100); !errors.Is(err, ErrVendorNotFound) {
		t.Fatalf("expected ErrVendorNotFound, got %v", err)
	}
}

func TestUpdateSettings(t *testing.T) {
	service := NewService()
	vendor, _ := service.Register("usr_1", "shop", "Shop")

	description := "  Handmade ceramics  "
	email := " Help@Shop.Example "
	updated, err := service.UpdateSettings(vendor.ID, SettingsPatch{Description: &description, SupportEmail: &email})
	if err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}
	if updated.Settings.Description != "Handmade ceramics" || updated.Settings.SupportEmail != "help@shop.example" {
		t.Fatalf("unexpected settings %#v", updated.Settings)
	}

	badEmail := "not-an-email"
	policy := "30 days"
	if _, err := service.UpdateSettings(vendor.ID, SettingsPatch{ReturnPolicy: &policy, SupportEmail: &badEmail}); !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("expected ErrInvalidSettings, got %v", err)
	}
	current, _ := service.GetByID(vendor.ID)
	if current.Settings.ReturnPolicy != "" {
		t.Fatalf("expected failed patch to leave settings untouched, got %#v", current.Settings)
	}

	blank := " "
	if _, err := service.UpdateSettings(vendor.ID, SettingsPatch{DisplayName: &blank}); !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("expected blank display name to fail, got %v", err)
	}
}

func TestVerificationTransitions(t *testing.T) {
	service := NewService()
	vendor, _ := service.Register("usr_1", "shop", "Shop")

	if _, err := service.SetVerificationState(vendor.ID, VerificationSuspended, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected pending vendor not to be suspended, got %v", err)
	}

	steps := []struct {
		to     VerificationState
		reason string
	}{
		{VerificationVerified, "documents checked"},
		{VerificationSuspended, "chargebacks"},
		{VerificationVerified, "resolved"},
	}
	for _, step := range steps {
		if _, err := service.SetVerificationState(vendor.ID, step.to, step.reason); err != nil {
			t.Fatalf("SetVerificationState(%s) error = %v", step.to, err)
		}
	}

	again, err := service.SetVerificationState(vendor.ID, VerificationVerified, "no-op")
	if err != nil {
		t.Fatalf("re-applying current state error = %v", err)
	}
	if len(again.VerificationHistory) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(again.VerificationHistory))
	}
	last := again.VerificationHistory[2]
	if last.From != VerificationSuspended || last.To != VerificationVerified || last.Reason != "resolved" {
		t.Fatalf("unexpected last review %+v", last)
	}

	if state, err := ParseVerificationState(" Suspended "); err != nil || state != VerificationSuspended {
		t.Fatalf("ParseVerificationState() = %q, %v", state, err)
	}
	if _, err := ParseVerificationState("archived"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestLowStockThresholdAndLogo(t *testing.T) {
	service := NewService()
	vendor, _ := service.Register("usr_1", "shop", "Shop")
	if vendor.Settings.LowStockThreshold != defaultLowStockThreshold {
		t.Fatalf("expected default threshold %d, got %d", defaultLowStockThreshold, vendor.Settings.LowStockThreshold)
	}

	threshold := int32(12)
	logo := "/uploads/assets/logo.png"
	updated, err := service.UpdateSettings(vendor.ID, SettingsPatch{LowStockThreshold: &threshold, LogoURL: &logo})
	if err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}
	if updated.Settings.LowStockThreshold != 12 || updated.Settings.LogoURL != logo {
		t.Fatalf("unexpected settings %#v", updated.Settings)
	}

	negative := int32(-1)
	if _, err := service.UpdateSettings(vendor.ID, SettingsPatch{LowStockThreshold: &negative}); !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("expected negative threshold to fail, got %v", err)
	}
	for _, bad := range []string{"javascript:alert(1)", "ftp://files.example.com/logo.png", "logo.png"} {
		candidate := bad
		if _, err := service.UpdateSettings(vendor.ID, SettingsPatch{LogoURL: &candidate}); !errors.Is(err, ErrInvalidSettings) {
			t.Fatalf("expected logo %q to fail, got %v", bad, err)
		}
	}
}
