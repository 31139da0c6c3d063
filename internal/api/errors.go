package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/shadowatlas/discovery-core/internal/repository"
	"github.com/shadowatlas/discovery-core/pkg/apierrors"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError renders any error as the shared apierrors envelope, mapping
// repository sentinel errors and validator failures into the right kind
// first. Cross-tenant lookups (repository.ErrNotFound) always become a
// generic 404, never a 403 -- spec.md §4.10's information-hiding rule.
func writeError(w http.ResponseWriter, resource string, err error) {
	var apiErr *apierrors.Error
	switch {
	case errors.As(err, &apiErr):
		writeJSON(w, apiErr.StatusCode, apiErr)
	case errors.Is(err, repository.ErrNotFound):
		e := apierrors.CrossTenantNotFound(resource)
		writeJSON(w, e.StatusCode, e)
	case errors.Is(err, repository.ErrVersionConflict):
		e := apierrors.Conflict(resource + " was modified concurrently, retry the request")
		writeJSON(w, e.StatusCode, e)
	default:
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			e := apierrors.Validation(fieldErrors(verrs))
			writeJSON(w, e.StatusCode, e)
			return
		}
		e := apierrors.Internal("an internal error occurred")
		writeJSON(w, e.StatusCode, e)
	}
}

func fieldErrors(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}
