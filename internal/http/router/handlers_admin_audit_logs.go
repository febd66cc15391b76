package router

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yxshee/marketplace-storefront/internal/auditlog"
)

const (
	defaultAuditPage = 50
	maxAuditPage     = 200
)

func (a *api) handleAdminAuditLogsList(w http.ResponseWriter, r *http.Request) {
	input, problem := auditLogQuery(r)
	if problem != "" {
		writeError(w, http.StatusBadRequest, problem)
		return
	}

	result := a.auditLogs.List(input)
	writeList(w, result.Items, result.Total)
}

// auditLogQuery reads the audit trail filters. Unlike the storefront, a
// malformed page or timestamp is reported instead of defaulted.
func auditLogQuery(r *http.Request) (auditlog.ListInput, string) {
	query := r.URL.Query()
	input := auditlog.ListInput{
		ActorType:  strings.TrimSpace(query.Get("actor_type")),
		ActorID:    strings.TrimSpace(query.Get("actor_id")),
		Action:     strings.TrimSpace(query.Get("action")),
		TargetType: strings.TrimSpace(query.Get("target_type")),
		TargetID:   strings.TrimSpace(query.Get("target_id")),
	}

	var ok bool
	if input.Limit, ok = strictQueryValue(r, "limit", defaultAuditPage, strconv.Atoi, func(n int) bool { return n >= 1 && n <= maxAuditPage }); !ok {
		return input, "limit must be between 1 and " + strconv.Itoa(maxAuditPage)
	}
	if input.Offset, ok = strictQueryValue(r, "offset", 0, strconv.Atoi, func(n int) bool { return n >= 0 }); !ok {
		return input, "offset must be zero or positive"
	}
	if input.Since, ok = strictQueryValue(r, "since", time.Time{}, parseTimestamp, nil); !ok {
		return input, "since must be an RFC3339 timestamp"
	}
	return input, ""
}

func parseTimestamp(raw string) (time.Time, error) {
	parsed, err := time.Parse(time.RFC3339, raw)
	return parsed.UTC(), err
}
