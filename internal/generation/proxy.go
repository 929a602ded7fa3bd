// Package generation proxies prompts to the text-to-image API and
// interprets its replies.
//
// The proxy is stateless. A queued generation is represented only by the poll
// URL handed back to the caller, and the caller decides when to poll again.
// No job table exists server side, so a restart loses nothing and clients own
// the retry cadence.
package generation

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/illimit3/jiagu-ai-drawing-website-db/internal/apperr"
	"github.com/illimit3/jiagu-ai-drawing-website-db/internal/prompts"
	"github.com/illimit3/jiagu-ai-drawing-website-db/internal/stablediffusion"
)

// DefaultETASeconds is reported when the upstream gives no estimate.
const DefaultETASeconds = 30

// Fixed submit parameters.
const (
	imageWidth        = 512
	imageHeight       = 512
	imageSamples      = 1
	inferenceSteps    = 20
	guidanceScale     = 7.5
	probeDimension    = 256
	probeSteps        = 1
	probePrompt       = "test"
	defaultGenerate   = "Failed to generate image"
	defaultFetch      = "Failed to fetch result"
	defaultInvalidKey = "Invalid API key"
)

type Status string

const (
	StatusSuccess    Status = "success"
	StatusProcessing Status = "processing"
	StatusError      Status = "error"
)

// Result is the interpreted outcome of a submit or poll.
type Result struct {
	Status     Status
	ImageURL   string
	PollURL    string
	ETASeconds float64
}

// KeyCheck is the outcome of probing the configured credential.
type KeyCheck struct {
	Valid   bool
	Message string
}

// Upstream is the wire client used by the proxy.
type Upstream interface {
	Text2Img(ctx context.Context, request stablediffusion.Text2ImgRequest) (*stablediffusion.Response, error)
	Fetch(ctx context.Context, pollURL string) (*stablediffusion.Response, error)
}

type Options struct {
	APIKey string
	// AllowedHosts lists the hosts a poll URL may point at.
	AllowedHosts []string
	// Timeout bounds each upstream call; zero means no extra deadline.
	Timeout time.Duration
}

type Proxy struct {
	upstream Upstream
	apiKey   string
	allowed  map[string]struct{}
	timeout  time.Duration
	log      zerolog.Logger
}

func NewProxy(upstream Upstream, opts Options, log zerolog.Logger) *Proxy {
	allowed := make(map[string]struct{}, len(opts.AllowedHosts))
	for _, h := range opts.AllowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			allowed[h] = struct{}{}
		}
	}
	return &Proxy{
		upstream: upstream,
		apiKey:   strings.TrimSpace(opts.APIKey),
		allowed:  allowed,
		timeout:  opts.Timeout,
		log:      log.With().Str("component", "generation").Logger(),
	}
}

// Submit sends prompt upstream with the fixed parameter set. It returns a
// success result, a processing result carrying the poll URL, or an error.
func (p *Proxy) Submit(ctx context.Context, prompt string) (Result, error) {
	prompt = prompts.Normalize(prompt)
	if prompt == "" {
		return Result{}, apperr.Validation("Prompt is required")
	}
	if p.apiKey == "" {
		return Result{}, apperr.Auth("API key is not set")
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	resp, err := p.upstream.Text2Img(ctx, stablediffusion.Text2ImgRequest{
		Key:               p.apiKey,
		Prompt:            prompt,
		Width:             imageWidth,
		Height:            imageHeight,
		Samples:           imageSamples,
		NumInferenceSteps: inferenceSteps,
		SafetyChecker:     "yes",
		EnhancePrompt:     "yes",
		GuidanceScale:     guidanceScale,
	})
	if err != nil {
		return Result{}, apperr.Upstream("", fmt.Errorf("text2img: %w", err))
	}

	switch {
	case strings.EqualFold(resp.Status, string(StatusProcessing)):
		res := Result{Status: StatusProcessing, PollURL: resp.PollURL(), ETASeconds: eta(resp)}
		p.log.Info().Str("poll_url", res.PollURL).Float64("eta", res.ETASeconds).Msg("generation queued")
		return res, nil
	case resp.FirstOutput() != "":
		return Result{Status: StatusSuccess, ImageURL: resp.FirstOutput()}, nil
	default:
		return Result{}, apperr.Upstream(messageOr(resp, defaultGenerate), nil)
	}
}

// Poll checks a queued generation once. pollURL must come from a previous
// Submit and point at an allowed host.
func (p *Proxy) Poll(ctx context.Context, pollURL string) (Result, error) {
	pollURL = strings.TrimSpace(pollURL)
	if pollURL == "" {
		return Result{}, apperr.Validation("Fetch URL is required")
	}
	if err := p.checkPollURL(pollURL); err != nil {
		return Result{}, err
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	resp, err := p.upstream.Fetch(ctx, pollURL)
	if err != nil {
		return Result{}, apperr.Upstream("", fmt.Errorf("fetch result: %w", err))
	}

	switch {
	case strings.EqualFold(resp.Status, string(StatusSuccess)) && resp.FirstOutput() != "":
		return Result{Status: StatusSuccess, ImageURL: resp.FirstOutput()}, nil
	case strings.EqualFold(resp.Status, string(StatusProcessing)):
		next := resp.PollURL()
		if next == "" {
			next = pollURL
		}
		return Result{Status: StatusProcessing, PollURL: next, ETASeconds: eta(resp)}, nil
	default:
		return Result{}, apperr.Upstream(messageOr(resp, defaultFetch), nil)
	}
}

// TestAPIKey probes the upstream with the cheapest accepted request. A
// missing key fails before any network call.
func (p *Proxy) TestAPIKey(ctx context.Context) (KeyCheck, error) {
	if p.apiKey == "" {
		return KeyCheck{}, apperr.Validation("API key is not set")
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	resp, err := p.upstream.Text2Img(ctx, stablediffusion.Text2ImgRequest{
		Key:               p.apiKey,
		Prompt:            probePrompt,
		Width:             probeDimension,
		Height:            probeDimension,
		Samples:           1,
		NumInferenceSteps: probeSteps,
	})
	if err != nil {
		return KeyCheck{}, apperr.Upstream("", fmt.Errorf("probe api key: %w", err))
	}
	if !resp.IsOK() {
		return KeyCheck{Valid: false, Message: messageOr(resp, defaultInvalidKey)}, nil
	}
	return KeyCheck{Valid: true, Message: "API key is valid"}, nil
}

func (p *Proxy) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

func (p *Proxy) checkPollURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return apperr.Validation("Fetch URL must be an absolute URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return apperr.Validation("Fetch URL must use http or https")
	}
	if _, ok := p.allowed[strings.ToLower(u.Hostname())]; !ok {
		return apperr.Validation("Fetch URL host is not allowed")
	}
	return nil
}

func eta(resp *stablediffusion.Response) float64 {
	if v := resp.ParseETA(); v > 0 {
		return v
	}
	return DefaultETASeconds
}

func messageOr(resp *stablediffusion.Response, fallback string) string {
	if msg := resp.MessageText(); msg != "" {
		return msg
	}
	if msg := resp.ErrorText(); msg != "" {
		return msg
	}
	return fallback
}
