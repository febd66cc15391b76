package router

import (
	"maps"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/yxshee/marketplace-storefront/internal/auditlog"
	"github.com/yxshee/marketplace-storefront/internal/auth"
)

type auditMetadata map[string]any

func actorTypeForRole(role auth.Role) string {
	if role.IsStaff() {
		return "admin"
	}
	if role == auth.RoleVendorOwner {
		return "vendor"
	}
	return "buyer"
}

// recordAuditLog appends an entry for the authenticated caller, tagged with the
// request ID. Anonymous requests are not audited and a failed write only logs.
func (a *api) recordAuditLog(r *http.Request, action, targetType, targetID string, before, after any, metadata auditMetadata) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if a.auditLogs == nil || !ok {
		return
	}

	input := auditlog.RecordInput{
		ActorType:  actorTypeForRole(identity.Role),
		ActorID:    identity.UserID,
		ActorRole:  identity.Role.String(),
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Before:     before,
		After:      after,
	}
	if requestID := middleware.GetReqID(r.Context()); requestID != "" {
		tagged := make(auditMetadata, len(metadata)+1)
		maps.Copy(tagged, metadata)
		tagged["request_id"] = requestID
		metadata = tagged
	}
	if len(metadata) > 0 {
		input.Metadata = metadata
	}

	if _, err := a.auditLogs.Record(input); err != nil {
		a.logger.WithError(err).WithField("action", action).Warn("audit log not recorded")
	}
}
