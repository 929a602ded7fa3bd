package stablediffusion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// maxResponseBytes caps how much of an upstream reply is read.
const maxResponseBytes = 1 << 20

// Client talks to the text-to-image HTTP API. It performs exactly one
// request per call and never retries.
type Client struct {
	endpoint   string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient returns a client for the submit endpoint. httpClient may be nil.
func NewClient(endpoint string, httpClient *http.Client, log zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: httpClient,
		log:        log.With().Str("component", "stablediffusion").Logger(),
	}
}

// Text2Img submits a generation request.
func (c *Client) Text2Img(ctx context.Context, request Text2ImgRequest) (*Response, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	c.log.Debug().
		Int("prompt_len", len(request.Prompt)).
		Int("width", request.Width).
		Int("height", request.Height).
		Int("steps", request.NumInferenceSteps).
		Msg("text2img request")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// Fetch retrieves the current state of a queued generation from a poll URL
// previously returned by Text2Img.
func (c *Client) Fetch(ctx context.Context, pollURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pollURL, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.log.Debug().Int("status", resp.StatusCode).Int("bytes", len(body)).Str("url", req.URL.Redacted()).Msg("upstream response")

	var parsed Response
	if err := json.Unmarshal(body, &parsed); err != nil {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, fmt.Errorf("unexpected response (%d): %s", resp.StatusCode, snippet)
	}
	parsed.HTTPStatus = resp.StatusCode
	return &parsed, nil
}
