package stablediffusion

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Text2ImgRequest is the body accepted by the text2img endpoint. Seed,
// webhook and track_id are always sent, null when unset.
type Text2ImgRequest struct {
	Key               string  `json:"key"`
	Prompt            string  `json:"prompt"`
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	Samples           int     `json:"samples"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	SafetyChecker     string  `json:"safety_checker,omitempty"`
	EnhancePrompt     string  `json:"enhance_prompt,omitempty"`
	Seed              *int64  `json:"seed"`
	GuidanceScale     float64 `json:"guidance_scale,omitempty"`
	Webhook           *string `json:"webhook"`
	TrackID           *string `json:"track_id"`
}

// Response covers both the text2img and fetch replies. Several fields vary
// in type between API versions and are kept raw.
type Response struct {
	Status   string          `json:"status"`
	Message  json.RawMessage `json:"message"`
	Error    json.RawMessage `json:"error"`
	ID       json.RawMessage `json:"id"`
	FetchURL string          `json:"fetch_result"`
	FetchAlt string          `json:"fetch_url"`
	ETA      json.RawMessage `json:"eta"`
	Output   []string        `json:"output"`

	// HTTPStatus is the status code of the reply that produced this value.
	HTTPStatus int `json:"-"`
}

// PollURL returns the continuation URL, whichever field carried it.
func (r Response) PollURL() string {
	if strings.TrimSpace(r.FetchAlt) != "" {
		return strings.TrimSpace(r.FetchAlt)
	}
	return strings.TrimSpace(r.FetchURL)
}

// FirstOutput returns the first non-empty output URL.
func (r Response) FirstOutput() string {
	if len(r.Output) == 0 {
		return ""
	}
	return strings.TrimSpace(r.Output[0])
}

// ParseETA returns the estimated seconds to completion, or 0 when absent.
func (r Response) ParseETA() float64 { return parseFloat(r.ETA) }

// MessageText flattens message into a string. Validation replies carry an
// object of field errors instead of a string.
func (r Response) MessageText() string { return rawText(r.Message) }

// ErrorText returns the error field as text, empty when absent or false.
func (r Response) ErrorText() string { return rawText(r.Error) }

// IsOK reports a 2xx reply that does not describe itself as an error.
func (r Response) IsOK() bool {
	if r.HTTPStatus < 200 || r.HTTPStatus >= 300 {
		return false
	}
	return !strings.EqualFold(r.Status, "error") && r.ErrorText() == ""
}

func parseFloat(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return v
		}
	}
	return 0
}

func rawText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" || string(raw) == "false" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err == nil {
		parts := make([]string, 0, len(fields))
		for _, v := range fields {
			switch vv := v.(type) {
			case string:
				parts = append(parts, vv)
			case []any:
				for _, item := range vv {
					if s, ok := item.(string); ok {
						parts = append(parts, s)
					}
				}
			}
		}
		if len(parts) > 0 {
			sort.Strings(parts)
			return strings.Join(parts, "; ")
		}
	}
	return strings.TrimSpace(string(raw))
}
