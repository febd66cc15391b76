package router

import (
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/yxshee/marketplace-storefront/internal/auth"
	"github.com/yxshee/marketplace-storefront/internal/vendors"
)

func (a *api) authenticate(next http.Handler) http.Handler {
	return a.identify(true, next)
}

func (a *api) optionalAuthenticate(next http.Handler) http.Handler {
	return a.identify(false, next)
}

// identify attaches the bearer token's identity to the request context. An
// optional token may be left out entirely, but a bad one is still rejected.
func (a *api) identify(required bool, next http.Handler) http.Handler {
	rejection := "authentication required"
	if !required {
		rejection = "invalid access token"
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" && !required {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := a.parseAccessIdentity(header)
		if err != nil {
			a.logger.WithError(err).WithField("path", r.URL.Path).Debug("access token rejected")
			writeError(w, http.StatusUnauthorized, rejection)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
	})
}

func (a *api) requirePermission(permission auth.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := auth.RequireIdentity(r.Context())
			if err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			if !identity.Can(permission) {
				a.logger.WithFields(logrus.Fields{
					"user_id":    identity.UserID,
					"role":       identity.Role,
					"permission": permission,
				}).Debug("permission denied")
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (a *api) parseAccessIdentity(authorizationHeader string) (auth.Identity, error) {
	token, err := bearerToken(authorizationHeader)
	if err != nil {
		return auth.Identity{}, err
	}

	claims, err := a.tokenManager.ParseAndValidate(token, auth.TokenTypeAccess)
	if err != nil {
		return auth.Identity{}, err
	}

	return claims.Identity(), nil
}

// vendorOwnerContext resolves the caller's vendor and writes the error response
// when the caller does not own one.
func (a *api) vendorOwnerContext(w http.ResponseWriter, r *http.Request) (auth.Identity, vendors.Vendor, bool) {
	identity, err := auth.RequireIdentity(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return auth.Identity{}, vendors.Vendor{}, false
	}

	shop, found := a.vendorService.GetByID(identity.LinkedVendor())
	switch {
	case identity.LinkedVendor() == "":
		writeError(w, http.StatusBadRequest, "vendor profile required")
	case !found:
		writeError(w, http.StatusNotFound, "vendor not found")
	case shop.OwnerUserID != identity.UserID:
		writeError(w, http.StatusForbidden, "forbidden")
	default:
		return identity, shop, true
	}
	return auth.Identity{}, vendors.Vendor{}, false
}
