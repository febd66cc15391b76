package vendors

import (
	"errors"
	"net/mail"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yxshee/marketplace-storefront/internal/platform/identifier"
)

type VerificationState string

const (
	VerificationPending   VerificationState = "pending"
	VerificationVerified  VerificationState = "verified"
	VerificationRejected  VerificationState = "rejected"
	VerificationSuspended VerificationState = "suspended"
)

const (
	maxShopTextLength        = 4000
	maxCommissionBPS         = 10_000
	defaultLowStockThreshold = 5
	maxLowStockThreshold     = 10_000
)

var (
	ErrOwnerAlreadyVendor = errors.New("owner already has vendor")
	ErrSlugInUse          = errors.New("vendor slug already in use")
	ErrInvalidSlug        = errors.New("vendor slug must be lowercase letters, digits and dashes")
	ErrVendorNotFound     = errors.New("vendor not found")
	ErrInvalidState       = errors.New("invalid verification state")
	ErrInvalidTransition  = errors.New("verification state change not allowed")
	ErrInvalidCommission  = errors.New("commission must be between 0 and 10000 basis points")
	ErrInvalidSettings    = errors.New("invalid shop settings")
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// transitions lists the states a vendor may move to from each state.
var transitions = map[VerificationState][]VerificationState{
	VerificationPending:   {VerificationVerified, VerificationRejected},
	VerificationVerified:  {VerificationSuspended},
	VerificationSuspended: {VerificationVerified, VerificationRejected},
	VerificationRejected:  {VerificationPending, VerificationVerified},
}

// ShopSettings is the storefront profile and inventory preferences a vendor
// edits in the back office.
type ShopSettings struct {
	Description       string `json:"description"`
	LogoURL           string `json:"logo_url"`
	SupportEmail      string `json:"support_email"`
	ReturnPolicy      string `json:"return_policy"`
	LowStockThreshold int32  `json:"low_stock_threshold"`
}

// VerificationReview records one verification decision.
type VerificationReview struct {
	From      VerificationState `json:"from"`
	To        VerificationState `json:"to"`
	Reason    string            `json:"reason,omitempty"`
	DecidedAt time.Time         `json:"decided_at"`
}

type Vendor struct {
	ID                    string               `json:"id"`
	OwnerUserID           string               `json:"owner_user_id"`
	Slug                  string               `json:"slug"`
	DisplayName           string               `json:"display_name"`
	VerificationState     VerificationState    `json:"verification_state"`
	VerificationHistory   []VerificationReview `json:"verification_history"`
	CommissionOverrideBPS *int32               `json:"commission_override_bps"`
	Settings              ShopSettings         `json:"settings"`
	CreatedAt             time.Time            `json:"created_at"`
	UpdatedAt             time.Time            `json:"updated_at"`
}

// CanSell reports whether the vendor's products may appear on the storefront.
func (v Vendor) CanSell() bool {
	return v.VerificationState == VerificationVerified
}

// SettingsPatch carries optional shop settings changes. Nil fields stay
// untouched.
type SettingsPatch struct {
	DisplayName       *string `json:"display_name"`
	Description       *string `json:"description"`
	LogoURL           *string `json:"logo_url"`
	SupportEmail      *string `json:"support_email"`
	ReturnPolicy      *string `json:"return_policy"`
	LowStockThreshold *int32  `json:"low_stock_threshold"`
}

// Service is the in-memory vendor registry.
type Service struct {
	mu      sync.RWMutex
	vendors map[string]Vendor
	owners  map[string]string
	slugs   map[string]string
	now     func() time.Time
}

func NewService() *Service {
	return &Service{
		vendors: make(map[string]Vendor),
		owners:  make(map[string]string),
		slugs:   make(map[string]string),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func normalizeSlug(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Register opens a pending shop for ownerUserID. The slug doubles as the
// display name when none is given.
func (s *Service) Register(ownerUserID, slug, displayName string) (Vendor, error) {
	slug = normalizeSlug(slug)
	if !slugPattern.MatchString(slug) {
		return Vendor{}, ErrInvalidSlug
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = slug
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.owners[ownerUserID] != "":
		return Vendor{}, ErrOwnerAlreadyVendor
	case s.slugs[slug] != "":
		return Vendor{}, ErrSlugInUse
	}

	now := s.now()
	registered := Vendor{
		ID:                identifier.New("ven"),
		OwnerUserID:       ownerUserID,
		Slug:              slug,
		DisplayName:       displayName,
		VerificationState: VerificationPending,
		Settings:          ShopSettings{LowStockThreshold: defaultLowStockThreshold},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.vendors[registered.ID] = registered
	s.owners[ownerUserID] = registered.ID
	s.slugs[slug] = registered.ID
	return registered, nil
}

func (s *Service) GetByOwner(ownerUserID string) (Vendor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookupLocked(s.owners[ownerUserID])
}

func (s *Service) GetByID(vendorID string) (Vendor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookupLocked(vendorID)
}

func (s *Service) GetBySlug(slug string) (Vendor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookupLocked(s.slugs[normalizeSlug(slug)])
}

func (s *Service) lookupLocked(vendorID string) (Vendor, bool) {
	found, ok := s.vendors[vendorID]
	if !ok {
		return Vendor{}, false
	}
	found.VerificationHistory = append([]VerificationReview(nil), found.VerificationHistory...)
	return found, true
}

// List returns vendors in the given state, or all of them for a nil filter,
// most recently updated first.
func (s *Service) List(state *VerificationState) []Vendor {
	s.mu.RLock()
	items := make([]Vendor, 0, len(s.vendors))
	for id, candidate := range s.vendors {
		if state != nil && candidate.VerificationState != *state {
			continue
		}
		found, _ := s.lookupLocked(id)
		items = append(items, found)
	}
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if !items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].UpdatedAt.After(items[j].UpdatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items
}

func ParseVerificationState(raw string) (VerificationState, error) {
	state := VerificationState(strings.ToLower(strings.TrimSpace(raw)))
	if _, known := transitions[state]; !known {
		return "", ErrInvalidState
	}
	return state, nil
}

// CanTransition reports whether a vendor in from may be moved to to.
func CanTransition(from, to VerificationState) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// SetVerificationState moves the vendor to state and appends the decision to
// its history. Re-applying the current state changes nothing.
func (s *Service) SetVerificationState(vendorID string, state VerificationState, reason string) (Vendor, error) {
	if _, known := transitions[state]; !known {
		return Vendor{}, ErrInvalidState
	}
	return s.update(vendorID, func(vendor *Vendor) error {
		if vendor.VerificationState == state {
			return errUnchanged
		}
		if !CanTransition(vendor.VerificationState, state) {
			return ErrInvalidTransition
		}
		vendor.VerificationHistory = append(vendor.VerificationHistory, VerificationReview{
			From:      vendor.VerificationState,
			To:        state,
			Reason:    strings.TrimSpace(reason),
			DecidedAt: s.now(),
		})
		vendor.VerificationState = state
		return nil
	})
}

func (s *Service) SetCommission(vendorID string, commissionBPS int32) (Vendor, error) {
	if commissionBPS < 0 || commissionBPS > maxCommissionBPS {
		return Vendor{}, ErrInvalidCommission
	}
	return s.update(vendorID, func(vendor *Vendor) error {
		vendor.CommissionOverrideBPS = &commissionBPS
		return nil
	})
}

// UpdateSettings applies patch as a whole. A failing field leaves the vendor
// unchanged.
func (s *Service) UpdateSettings(vendorID string, patch SettingsPatch) (Vendor, error) {
	return s.update(vendorID, func(vendor *Vendor) error {
		next := *vendor
		if patch.DisplayName != nil {
			if next.DisplayName = strings.TrimSpace(*patch.DisplayName); next.DisplayName == "" {
				return ErrInvalidSettings
			}
		}
		if patch.Description != nil {
			if next.Settings.Description = strings.TrimSpace(*patch.Description); len(next.Settings.Description) > maxShopTextLength {
				return ErrInvalidSettings
			}
		}
		if patch.ReturnPolicy != nil {
			if next.Settings.ReturnPolicy = strings.TrimSpace(*patch.ReturnPolicy); len(next.Settings.ReturnPolicy) > maxShopTextLength {
				return ErrInvalidSettings
			}
		}
		if patch.LogoURL != nil {
			logo := strings.TrimSpace(*patch.LogoURL)
			if logo != "" && !validLogoURL(logo) {
				return ErrInvalidSettings
			}
			next.Settings.LogoURL = logo
		}
		if patch.SupportEmail != nil {
			email := strings.ToLower(strings.TrimSpace(*patch.SupportEmail))
			if email != "" {
				if parsed, err := mail.ParseAddress(email); err != nil || parsed.Address != email {
					return ErrInvalidSettings
				}
			}
			next.Settings.SupportEmail = email
		}
		if patch.LowStockThreshold != nil {
			threshold := *patch.LowStockThreshold
			if threshold < 0 || threshold > maxLowStockThreshold {
				return ErrInvalidSettings
			}
			next.Settings.LowStockThreshold = threshold
		}
		*vendor = next
		return nil
	})
}

// validLogoURL accepts absolute http(s) URLs and site-relative paths such as
// the ones returned by the local asset store.
func validLogoURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if parsed.Scheme == "" && parsed.Host == "" {
		return strings.HasPrefix(parsed.Path, "/")
	}
	return (parsed.Scheme == "https" || parsed.Scheme == "http") && parsed.Host != ""
}

var errUnchanged = errors.New("unchanged")

func (s *Service) update(vendorID string, apply func(vendor *Vendor) error) (Vendor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.vendors[vendorID]
	if !exists {
		return Vendor{}, ErrVendorNotFound
	}
	if err := apply(&current); err != nil {
		if !errors.Is(err, errUnchanged) {
			return Vendor{}, err
		}
	} else {
		current.UpdatedAt = s.now()
		s.vendors[vendorID] = current
	}

	updated, _ := s.lookupLocked(vendorID)
	return updated, nil
}
