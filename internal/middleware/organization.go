package middleware

import (
	"net/http"
	"strings"

	"github.com/shadowatlas/discovery-core/internal/multitenancy"
)

// OrganizationMiddleware resolves the organization id for the request
// and injects it into context. The organization itself is opaque and
// owned by the external identity provider; this middleware never loads
// or validates it beyond checking that an API key authenticates as it.
func OrganizationMiddleware(om *multitenancy.OrganizationManager, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var organizationID string

		// 1. Authorization: Bearer ocx_<id>.<secret>
		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ocx_") {
			apiKey := strings.TrimPrefix(authHeader, "Bearer ")
			orgID, err := om.ValidateAPIKey(ctx, apiKey)
			if err != nil {
				http.Error(w, "Invalid API Key", http.StatusUnauthorized)
				return
			}
			organizationID = orgID
		}

		// 2. X-Organization-ID header, trusted only behind an internal
		// gateway -- used for service-to-service calls that already went
		// through identity-provider auth upstream.
		if organizationID == "" {
			organizationID = r.Header.Get("X-Organization-ID")
		}

		if organizationID == "" {
			http.Error(w, "Missing organization context (API key or X-Organization-ID)", http.StatusUnauthorized)
			return
		}

		ctx = multitenancy.WithOrganization(ctx, organizationID)
		next(w, r.WithContext(ctx))
	}
}
