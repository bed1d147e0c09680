package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/username/taxcore/src/logger"
	"github.com/username/taxcore/src/models"
	"github.com/username/taxcore/src/repository"
	"github.com/username/taxcore/src/services"
	"github.com/username/taxcore/src/taxconfig"
	"github.com/username/taxcore/src/utils"
)

const maxJSONBodyBytes = 1 << 20

// writeServiceError maps service errors to HTTP statuses. Unexpected errors
// are logged and hidden from the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, taxconfig.ErrConfigNotFound):
		utils.SendJSONError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, repository.ErrNotFound):
		utils.SendJSONError(w, "resource not found", http.StatusNotFound)
	case errors.Is(err, services.ErrInvalidInput),
		errors.Is(err, services.ErrUnsupportedFile),
		errors.Is(err, models.ErrInvalidProfile),
		errors.Is(err, taxconfig.ErrInvalidConfig):
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
	default:
		logger.FromContext(r.Context()).Error("Internal error handling request", "path", r.URL.Path, "error", err)
		utils.SendJSONError(w, "An internal error occurred. Please try again later.", http.StatusInternalServerError)
	}
}

// decodeJSON reads a bounded JSON body into dst. An empty body is allowed
// when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return true
		}
		utils.SendJSONError(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}
