package auth

import (
	"errors"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/yxshee/marketplace-storefront/internal/platform/identifier"
)

var (
	ErrEmailInUse          = errors.New("email already in use")
	ErrInvalidEmail        = errors.New("invalid email address")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrUserNotFound        = errors.New("user not found")
	ErrVendorAlreadyLinked = errors.New("vendor already linked")
	ErrSessionInvalid      = errors.New("refresh session invalid")
	ErrSessionExpired      = errors.New("refresh session expired")
)

// User is an account of any role. Buyers become vendor owners by linking a
// vendor.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	VendorID     *string
	CreatedAt    time.Time
}

// Session is one refresh chain. Only the hash of the current refresh token is
// kept.
type Session struct {
	ID               string
	UserID           string
	RefreshTokenHash string
	ExpiresAt        time.Time
}

// Service owns accounts and refresh sessions and mints their tokens.
type Service struct {
	tokens *TokenManager

	mu           sync.RWMutex
	users        map[string]User
	emailIndex   map[string]string
	sessions     map[string]Session
	userSessions map[string]map[string]struct{}
	staffRoles   map[string]Role
	now          func() time.Time

	decoyOnce sync.Once
	decoyHash string
}

func NewService(staffRoles map[string]Role, tokens *TokenManager) *Service {
	normalized := make(map[string]Role, len(staffRoles))
	for email, role := range staffRoles {
		normalized[normalizeEmail(email)] = role
	}

	return &Service{
		tokens:       tokens,
		users:        make(map[string]User),
		emailIndex:   make(map[string]string),
		sessions:     make(map[string]Session),
		userSessions: make(map[string]map[string]struct{}),
		staffRoles:   normalized,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// BuildBootstrapRoleMap assigns staff roles from comma-separated email lists.
// The more privileged list wins when an email appears twice.
func BuildBootstrapRoleMap(superAdmins, support, catalogModerators string) map[string]Role {
	assignments := make(map[string]Role)
	for _, list := range []struct {
		emails string
		role   Role
	}{
		{catalogModerators, RoleCatalogModerator},
		{support, RoleSupport},
		{superAdmins, RoleSuperAdmin},
	} {
		for _, raw := range strings.Split(list.emails, ",") {
			if email := normalizeEmail(raw); email != "" {
				assignments[email] = list.role
			}
		}
	}
	return assignments
}

func normalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func (s *Service) Register(email, plainPassword string) (User, error) {
	normalized := normalizeEmail(email)
	if address, err := mail.ParseAddress(normalized); err != nil || address.Address != normalized {
		return User{}, ErrInvalidEmail
	}

	hash, err := HashPassword(plainPassword)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.emailIndex[normalized]; taken {
		return User{}, ErrEmailInUse
	}

	role, isStaff := s.staffRoles[normalized]
	if !isStaff {
		role = RoleBuyer
	}
	user := User{
		ID:           identifier.New("usr"),
		Email:        normalized,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    s.now(),
	}
	s.users[user.ID] = user
	s.emailIndex[normalized] = user.ID
	return user, nil
}

// Authenticate checks credentials. Unknown emails still pay for a bcrypt
// comparison. Hashes made with an outdated cost are replaced on success.
func (s *Service) Authenticate(email, plainPassword string) (User, error) {
	normalized := normalizeEmail(email)

	s.mu.RLock()
	user, known := s.users[s.emailIndex[normalized]]
	s.mu.RUnlock()

	if !known {
		VerifyPassword(s.decoy(), plainPassword)
		return User{}, ErrInvalidCredentials
	}
	if !VerifyPassword(user.PasswordHash, plainPassword) {
		return User{}, ErrInvalidCredentials
	}

	if NeedsRehash(user.PasswordHash) {
		if rehashed, err := HashPassword(plainPassword); err == nil {
			s.mu.Lock()
			if current, ok := s.users[user.ID]; ok {
				current.PasswordHash = rehashed
				s.users[user.ID] = current
				user = current
			}
			s.mu.Unlock()
		}
	}
	return user, nil
}

func (s *Service) decoy() string {
	s.decoyOnce.Do(func() {
		s.decoyHash, _ = HashPassword(identifier.New("decoy"))
	})
	return s.decoyHash
}

func (s *Service) GetUserByID(userID string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, exists := s.users[userID]
	return user, exists
}

// AttachVendor promotes a buyer to owner of vendorID. Staff keep their role.
func (s *Service) AttachVendor(userID, vendorID string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[userID]
	switch {
	case !exists:
		return User{}, ErrUserNotFound
	case user.VendorID != nil && *user.VendorID != vendorID:
		return User{}, ErrVendorAlreadyLinked
	}

	if !user.Role.IsStaff() {
		user.Role = RoleVendorOwner
	}
	user.VendorID = &vendorID
	s.users[userID] = user
	return user, nil
}

// StartSession opens a refresh session for user and returns its first token
// pair.
func (s *Service) StartSession(user User) (TokenPair, error) {
	if s.tokens == nil {
		return TokenPair{}, errors.New("token manager not configured")
	}
	sessionID := identifier.New("ses")
	pair, err := s.tokens.IssueTokenPair(user, sessionID)
	if err != nil {
		return TokenPair{}, err
	}

	s.SaveSession(Session{
		ID:               sessionID,
		UserID:           user.ID,
		RefreshTokenHash: HashToken(pair.RefreshToken),
		ExpiresAt:        pair.RefreshExpiresAt,
	})
	return pair, nil
}

// Refresh rotates a refresh token: the presented session is consumed and a
// new one is opened for the same user.
func (s *Service) Refresh(rawRefreshToken string) (User, TokenPair, error) {
	if s.tokens == nil {
		return User{}, TokenPair{}, errors.New("token manager not configured")
	}
	claims, err := s.tokens.ParseAndValidate(rawRefreshToken, TokenTypeRefresh)
	if err != nil {
		return User{}, TokenPair{}, err
	}

	user, err := s.ConsumeSession(claims.SessionID, claims.UserID, rawRefreshToken)
	if err != nil {
		return User{}, TokenPair{}, err
	}
	pair, err := s.StartSession(user)
	if err != nil {
		return User{}, TokenPair{}, err
	}
	return user, pair, nil
}

// SessionForRefreshToken resolves the session id a refresh token belongs to.
func (s *Service) SessionForRefreshToken(rawRefreshToken string) (string, bool) {
	if s.tokens == nil {
		return "", false
	}
	claims, err := s.tokens.ParseAndValidate(rawRefreshToken, TokenTypeRefresh)
	if err != nil {
		return "", false
	}
	return claims.SessionID, true
}

func (s *Service) SaveSession(session Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.ID] = session
	owned, ok := s.userSessions[session.UserID]
	if !ok {
		owned = make(map[string]struct{})
		s.userSessions[session.UserID] = owned
	}
	owned[session.ID] = struct{}{}
}

func (s *Service) GetSession(sessionID string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, exists := s.sessions[sessionID]
	return session, exists
}

func (s *Service) DeleteSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropSessionLocked(sessionID)
}

// RevokeUserSessions ends every refresh session of userID and returns how many
// were open.
func (s *Service) RevokeUserSessions(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	revoked := 0
	for sessionID := range s.userSessions[userID] {
		s.dropSessionLocked(sessionID)
		revoked++
	}
	return revoked
}

func (s *Service) dropSessionLocked(sessionID string) {
	session, exists := s.sessions[sessionID]
	if !exists {
		return
	}
	delete(s.sessions, sessionID)
	if owned := s.userSessions[session.UserID]; owned != nil {
		delete(owned, sessionID)
		if len(owned) == 0 {
			delete(s.userSessions, session.UserID)
		}
	}
}

// ConsumeSession checks a presented refresh token against its session and
// removes the session, so each refresh token works once.
func (s *Service) ConsumeSession(sessionID, userID, rawRefreshToken string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists || session.UserID != userID {
		return User{}, ErrSessionInvalid
	}
	if !session.ExpiresAt.After(s.now()) {
		s.dropSessionLocked(sessionID)
		return User{}, ErrSessionExpired
	}
	if session.RefreshTokenHash != HashToken(rawRefreshToken) {
		return User{}, ErrSessionInvalid
	}

	user, exists := s.users[userID]
	if !exists {
		return User{}, ErrUserNotFound
	}
	s.dropSessionLocked(sessionID)
	return user, nil
}
