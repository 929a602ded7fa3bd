package app

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/illimit3/jiagu-ai-drawing-website-db/internal/apperr"
	"github.com/illimit3/jiagu-ai-drawing-website-db/internal/generation"
)

const maxGenerateBodyBytes = 64 << 10

type generateRequest struct {
	Prompt string `json:"prompt"`
}

// generationView keeps the upstream field names clients already poll with.
type generationView struct {
	Status      generation.Status `json:"status"`
	ImageURL    string            `json:"imageUrl,omitempty"`
	FetchResult string            `json:"fetch_result,omitempty"`
	ETA         float64           `json:"eta,omitempty"`
}

func buildGenerationView(res generation.Result) generationView {
	view := generationView{Status: res.Status}
	switch res.Status {
	case generation.StatusSuccess:
		view.ImageURL = res.ImageURL
	case generation.StatusProcessing:
		view.FetchResult = res.PollURL
		view.ETA = res.ETASeconds
	}
	return view
}

func (a *App) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	body := http.MaxBytesReader(w, r.Body, maxGenerateBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		a.writeGenerationError(w, r, http.StatusBadRequest, apperr.Validation("Invalid request body"))
		return
	}

	res, err := a.proxy.Submit(r.Context(), req.Prompt)
	if err != nil {
		a.writeGenerationError(w, r, apperr.Status(err), err)
		return
	}
	writeJSON(w, http.StatusOK, buildGenerationView(res))
}

func (a *App) handleFetchResult(w http.ResponseWriter, r *http.Request) {
	res, err := a.proxy.Poll(r.Context(), r.URL.Query().Get("fetch_result"))
	if err != nil {
		a.writeGenerationError(w, r, apperr.Status(err), err)
		return
	}
	writeJSON(w, http.StatusOK, buildGenerationView(res))
}

func (a *App) handleTestAPIKey(w http.ResponseWriter, r *http.Request) {
	check, err := a.proxy.TestAPIKey(r.Context())
	if err != nil {
		a.writeGenerationError(w, r, apperr.Status(err), err)
		return
	}
	if !check.Valid {
		a.writeGenerationError(w, r, http.StatusUnauthorized, apperr.Auth(check.Message))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": check.Message,
	})
}

func (a *App) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusTooManyRequests, map[string]string{
		"status":  "error",
		"message": "Too many requests, please slow down",
	})
}
