package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/shadowatlas/discovery-core/internal/connector"
	"github.com/shadowatlas/discovery-core/internal/events"
	"github.com/shadowatlas/discovery-core/internal/multitenancy"
	"github.com/shadowatlas/discovery-core/internal/orchestrator"
	"github.com/shadowatlas/discovery-core/internal/repository"
	"github.com/shadowatlas/discovery-core/internal/vault"
	"github.com/shadowatlas/discovery-core/pkg/apierrors"
)

// handleCreateConnection starts the OAuth handshake: mint an opaque state
// bound to the requesting organization and platform, and return the
// provider's authorization URL for the client to redirect to.
func (s *Server) handleCreateConnection(w http.ResponseWriter, r *http.Request) {
	organizationID, err := multitenancy.OrganizationID(r.Context())
	if err != nil {
		writeError(w, "connection", apierrors.Unauthorized(err.Error()))
		return
	}

	var req createConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "connection", apierrors.Validation(map[string]string{"body": "invalid json"}))
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, "connection", err)
		return
	}

	platform := connector.Platform(req.Platform)
	cfg, ok := s.oauthConfig[platform]
	if !ok {
		writeError(w, "connection", apierrors.Validation(map[string]string{"platform": "oneof"}))
		return
	}

	state := s.states.Issue(organizationID, platform)
	writeJSON(w, http.StatusOK, createConnectionResponse{
		AuthorizationURL: cfg.AuthCodeURL(state),
		State:            state,
	})
}

// handleOAuthCallback exchanges the authorization code, seals the resulting
// credential, and creates the connection row. It authenticates by
// possession of the opaque state rather than an API key -- the identity
// provider redirects the browser here directly, with no Authorization
// header attached.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	connectionID := vars["id"]

	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		writeError(w, "connection", apierrors.Validation(map[string]string{"state": "required", "code": "required"}))
		return
	}

	organizationID, platform, ok := s.states.Consume(state)
	if !ok {
		writeError(w, "connection", apierrors.Unauthorized("invalid or expired oauth state"))
		return
	}

	cfg, ok := s.oauthConfig[platform]
	if !ok {
		writeError(w, "connection", apierrors.Internal("no oauth config for platform"))
		return
	}

	ctx := r.Context()
	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		writeError(w, "connection", apierrors.Unauthorized("oauth code exchange failed"))
		return
	}

	cred := &vault.Credential{
		Type:         vault.CredentialOAuth2,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if !token.Expiry.IsZero() {
		exp := token.Expiry
		cred.ExpiresAt = &exp
	}

	plaintext, err := vault.MarshalForSeal(cred)
	if err != nil {
		writeError(w, "connection", apierrors.Internal("seal credential"))
		return
	}
	sealed, err := s.vault.Seal(plaintext)
	if err != nil {
		writeError(w, "connection", apierrors.Internal("seal credential"))
		return
	}

	conn := &repository.PlatformConnection{
		ID:          connectionID,
		Platform:    platform,
		DisplayName: string(platform),
		Status:      "active",
	}
	if err := s.repo.CreateConnection(ctx, organizationID, conn); err != nil {
		writeError(w, "connection", err)
		return
	}

	encCred := &repository.EncryptedCredential{
		ConnectionID:     connectionID,
		CiphertextAccess: sealed.Ciphertext,
		Encryption: repository.JSONB[repository.EncryptionMetadata]{Data: repository.EncryptionMetadata{
			Algorithm:     "aes-256-gcm",
			KeyVersion:    sealed.KeyVersion,
			Nonce:         sealed.Nonce,
			IntegrityHash: sealed.IntegrityHash,
			EncryptedAt:   time.Now(),
		}},
	}
	if err := s.repo.PutCredential(ctx, organizationID, encCred); err != nil {
		writeError(w, "connection", err)
		return
	}

	if s.bus != nil {
		if ev, err := events.NewConnectionUpdate(organizationID, events.ConnectionUpdateData{
			ConnectionID: connectionID,
			Status:       "active",
			Platform:     string(platform),
			At:           time.Now(),
		}); err == nil {
			_ = s.bus.Publish(ctx, ev)
		}
	}

	writeJSON(w, http.StatusCreated, toConnectionResponse(conn))
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	organizationID, err := multitenancy.OrganizationID(r.Context())
	if err != nil {
		writeError(w, "connection", apierrors.Unauthorized(err.Error()))
		return
	}
	connectionID := mux.Vars(r)["id"]
	ctx := r.Context()

	if s.discovery != nil {
		s.discovery.CancelConnection(ctx, connectionID)
	}

	if err := s.repo.DisconnectConnection(ctx, organizationID, connectionID); err != nil {
		writeError(w, "connection", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEnqueueDiscovery(w http.ResponseWriter, r *http.Request) {
	organizationID, err := multitenancy.OrganizationID(r.Context())
	if err != nil {
		writeError(w, "connection", apierrors.Unauthorized(err.Error()))
		return
	}
	connectionID := mux.Vars(r)["id"]
	ctx := r.Context()

	if _, err := s.repo.GetConnection(ctx, organizationID, connectionID); err != nil {
		writeError(w, "connection", err)
		return
	}

	run := &repository.DiscoveryRun{
		ID:        connectionID + "-" + time.Now().Format("20060102150405"),
		ConnectionID: connectionID,
		Status:    "running",
		StartedAt: time.Now(),
	}
	if err := s.repo.CreateDiscoveryRun(ctx, organizationID, run); err != nil {
		writeError(w, "discovery run", err)
		return
	}

	job := &orchestrator.Job{
		ID:             orchestrator.RepeatableJobID(organizationID, connectionID),
		Queue:          orchestrator.QueueDiscovery,
		OrganizationID: organizationID,
		ConnectionID:   connectionID,
		DiscoveryRunID: run.ID,
		MaxAttempts:    orchestrator.DefaultMaxAttempts,
		ScheduledAt:    time.Now(),
	}
	if s.discovery != nil {
		if err := s.discovery.Enqueue(ctx, job); err != nil {
			writeError(w, "discovery job", apierrors.Internal("failed to enqueue discovery"))
			return
		}
	}

	writeJSON(w, http.StatusAccepted, discoverResponse{JobID: job.ID})
}

func toConnectionResponse(c *repository.PlatformConnection) connectionResponse {
	return connectionResponse{
		ID:               c.ID,
		OrganizationID:   c.OrganizationID,
		Platform:         string(c.Platform),
		DisplayName:      c.DisplayName,
		Status:           c.Status,
		LastSyncAt:       c.LastSyncAt,
		LastErrorMessage: c.LastErrorMessage,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}
