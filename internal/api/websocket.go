package api

import (
	"net/http"

	"github.com/shadowatlas/discovery-core/internal/multitenancy"
	"github.com/shadowatlas/discovery-core/pkg/apierrors"
)

// handleWebsocket upgrades to the per-organization event stream (spec.md
// §7: connection status, discovery progress, automation-discovered, and
// system-notification events), delegating the actual upgrade and fan-out
// to the shared Hub.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	organizationID, err := multitenancy.OrganizationID(r.Context())
	if err != nil {
		writeError(w, "websocket", apierrors.Unauthorized(err.Error()))
		return
	}
	s.hub.ServeHTTP(w, r, organizationID)
}
