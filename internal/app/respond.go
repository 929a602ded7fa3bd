package app

import (
	"encoding/json"
	"net/http"

	"github.com/illimit3/jiagu-ai-drawing-website-db/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError answers gallery routes with {"error": message}.
func (a *App) writeError(w http.ResponseWriter, r *http.Request, err error) {
	a.logFailure(r, err)
	writeJSON(w, apperr.Status(err), map[string]string{
		"error": apperr.PublicMessage(err),
	})
}

// writeGenerationError answers generation routes with
// {"status": "error", "message": message}.
func (a *App) writeGenerationError(w http.ResponseWriter, r *http.Request, status int, err error) {
	a.logFailure(r, err)
	writeJSON(w, status, map[string]string{
		"status":  "error",
		"message": apperr.PublicMessage(err),
	})
}

func (a *App) logFailure(r *http.Request, err error) {
	switch kind := apperr.KindOf(err); kind {
	case apperr.KindInternal, apperr.KindUpstream:
		a.log.Error().Err(err).
			Str("kind", kind.String()).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
}
