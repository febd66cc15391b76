package router

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yxshee/marketplace-storefront/internal/auth"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (req refreshTokenRequest) token() string {
	return strings.TrimSpace(req.RefreshToken)
}

type sessionResponse struct {
	AccessToken      string      `json:"access_token"`
	RefreshToken     string      `json:"refresh_token"`
	AccessExpiresAt  time.Time   `json:"access_expires_at"`
	RefreshExpiresAt time.Time   `json:"refresh_expires_at"`
	User             accountView `json:"user"`
}

type accountView struct {
	ID          string            `json:"id"`
	Email       string            `json:"email"`
	Role        auth.Role         `json:"role"`
	VendorID    *string           `json:"vendor_id,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	Permissions []auth.Permission `json:"permissions,omitempty"`
}

func newAccountView(user auth.User) accountView {
	return accountView{
		ID:        user.ID,
		Email:     user.Email,
		Role:      user.Role,
		VendorID:  user.VendorID,
		CreatedAt: user.CreatedAt,
	}
}

func newSessionResponse(user auth.User, pair auth.TokenPair) sessionResponse {
	return sessionResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		User:             newAccountView(user),
	}
}

var registrationErrors = []struct {
	err     error
	status  int
	message string
}{
	{auth.ErrEmailInUse, http.StatusConflict, "email already registered"},
	{auth.ErrInvalidEmail, http.StatusBadRequest, "invalid email address"},
	{auth.ErrWeakPassword, http.StatusBadRequest, "password must be at least 8 characters"},
	{auth.ErrPasswordTooLong, http.StatusBadRequest, "password must be at most 72 bytes"},
}

func (a *api) startSession(w http.ResponseWriter, status int, user auth.User) {
	pair, err := a.authService.StartSession(user)
	if err != nil {
		a.logger.WithError(err).WithField("user_id", user.ID).Error("token issuance failed")
		writeError(w, http.StatusInternalServerError, "token issuance failed")
		return
	}
	writeJSON(w, status, newSessionResponse(user, pair))
}

func (a *api) handleAuthRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := a.authService.Register(req.Email, req.Password)
	if err != nil {
		for _, known := range registrationErrors {
			if errors.Is(err, known.err) {
				writeError(w, known.status, known.message)
				return
			}
		}
		writeError(w, http.StatusBadRequest, "registration failed")
		return
	}

	a.logger.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("account registered")
	a.startSession(w, http.StatusCreated, user)
}

func (a *api) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := a.authService.Authenticate(req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	a.startSession(w, http.StatusOK, user)
}

// handleAuthRefresh exchanges a refresh token for a new pair. The presented
// token stops working.
func (a *api) handleAuthRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, pair, err := a.authService.Refresh(req.token())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, newSessionResponse(user, pair))
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrInvalidTokenType):
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
	case errors.Is(err, auth.ErrSessionExpired):
		writeError(w, http.StatusUnauthorized, "refresh session expired")
	case errors.Is(err, auth.ErrSessionInvalid), errors.Is(err, auth.ErrUserNotFound):
		writeError(w, http.StatusUnauthorized, "invalid refresh session")
	default:
		a.logger.WithError(err).Error("refresh failed")
		writeError(w, http.StatusInternalServerError, "token issuance failed")
	}
}

// handleAuthLogout ends the session named by the body's refresh token, or the
// caller's current session when none is given.
func (a *api) handleAuthLogout(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.RequireIdentity(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	sessionID := identity.SessionID
	var req refreshTokenRequest
	if decodeJSON(r, &req) == nil && req.token() != "" {
		if presented, ok := a.authService.SessionForRefreshToken(req.token()); ok {
			if session, open := a.authService.GetSession(presented); open && session.UserID == identity.UserID {
				sessionID = presented
			}
		}
	}

	a.authService.DeleteSession(sessionID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (a *api) handleAuthLogoutAll(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.RequireIdentity(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	revoked := a.authService.RevokeUserSessions(identity.UserID)
	a.recordAuditLog(r, "auth.sessions_revoked", "user", identity.UserID, nil, nil, auditMetadata{
		"revoked": revoked,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out", "revoked_sessions": revoked})
}

func (a *api) handleAuthMe(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.RequireIdentity(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	user, exists := a.authService.GetUserByID(identity.UserID)
	if !exists {
		writeError(w, http.StatusUnauthorized, "user not found")
		return
	}
	view := newAccountView(user)
	view.Permissions = auth.PermissionsFor(user.Role)
	writeJSON(w, http.StatusOK, view)
}
