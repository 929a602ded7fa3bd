package generation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/illimit3/jiagu-ai-drawing-website-db/internal/apperr"
	"github.com/illimit3/jiagu-ai-drawing-website-db/internal/stablediffusion"
)

type fakeUpstream struct {
	submitBody string
	fetchBody  string
	err        error

	submits  []stablediffusion.Text2ImgRequest
	fetches  []string
	deadline bool
}

func decode(t *testing.T, body string) *stablediffusion.Response {
	t.Helper()
	var r stablediffusion.Response
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		t.Fatalf("bad fixture %q: %v", body, err)
	}
	r.HTTPStatus = http.StatusOK
	return &r
}

type fakeT struct {
	t *testing.T
	f *fakeUpstream
}

func (u fakeT) Text2Img(ctx context.Context, req stablediffusion.Text2ImgRequest) (*stablediffusion.Response, error) {
	u.f.submits = append(u.f.submits, req)
	_, u.f.deadline = ctx.Deadline()
	if u.f.err != nil {
		return nil, u.f.err
	}
	return decode(u.t, u.f.submitBody), nil
}

func (u fakeT) Fetch(ctx context.Context, pollURL string) (*stablediffusion.Response, error) {
	u.f.fetches = append(u.f.fetches, pollURL)
	if u.f.err != nil {
		return nil, u.f.err
	}
	return decode(u.t, u.f.fetchBody), nil
}

func newProxy(t *testing.T, f *fakeUpstream, key string) *Proxy {
	return NewProxy(fakeT{t: t, f: f}, Options{
		APIKey:       key,
		AllowedHosts: []string{"stablediffusionapi.com"},
		Timeout:      time.Minute,
	}, zerolog.Nop())
}

func TestSubmitEmptyPromptMakesNoCall(t *testing.T) {
	f := &fakeUpstream{}
	p := newProxy(t, f, "key")

	for _, prompt := range []string{"", "   "} {
		_, err := p.Submit(context.Background(), prompt)
		if !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("Submit(%q) error = %v, want validation", prompt, err)
		}
	}
	if len(f.submits) != 0 {
		t.Fatalf("expected no upstream calls, got %d", len(f.submits))
	}
}

func TestSubmitWithoutKeyMakesNoCall(t *testing.T) {
	f := &fakeUpstream{}
	p := newProxy(t, f, "")

	_, err := p.Submit(context.Background(), "a cat")
	if !apperr.Is(err, apperr.KindAuth) {
		t.Fatalf("error = %v, want auth", err)
	}
	if len(f.submits) != 0 {
		t.Fatal("expected no upstream call")
	}
}

func TestSubmitInterpretsResponses(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    Result
		wantErr string
	}{
		{
			name: "processing",
			body: `{"status":"processing","fetch_url":"X","eta":12}`,
			want: Result{Status: StatusProcessing, PollURL: "X", ETASeconds: 12},
		},
		{
			name: "processing default eta",
			body: `{"status":"processing","fetch_url":"X"}`,
			want: Result{Status: StatusProcessing, PollURL: "X", ETASeconds: DefaultETASeconds},
		},
		{
			name: "immediate output",
			body: `{"output":["http://img"]}`,
			want: Result{Status: StatusSuccess, ImageURL: "http://img"},
		},
		{
			name:    "upstream message",
			body:    `{"status":"error","message":"Out of credits"}`,
			wantErr: "Out of credits",
		},
		{
			name:    "empty output",
			body:    `{"status":"success","output":[]}`,
			wantErr: defaultGenerate,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := &fakeUpstream{submitBody: tc.body}
			got, err := newProxy(t, f, "key").Submit(context.Background(), "  a cat  ")
			if tc.wantErr != "" {
				if !apperr.Is(err, apperr.KindUpstream) {
					t.Fatalf("error = %v, want upstream", err)
				}
				if apperr.Status(err) != http.StatusInternalServerError {
					t.Fatalf("status = %d", apperr.Status(err))
				}
				if msg := apperr.PublicMessage(err); msg != tc.wantErr {
					t.Fatalf("message = %q, want %q", msg, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Submit: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Submit() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestSubmitUsesFixedParameters(t *testing.T) {
	f := &fakeUpstream{submitBody: `{"output":["http://img"]}`}
	if _, err := newProxy(t, f, "secret").Submit(context.Background(), "  a  cat "); err != nil {
		t.Fatal(err)
	}
	req := f.submits[0]
	if req.Key != "secret" || req.Prompt != "a cat" {
		t.Fatalf("unexpected request: %+v", req)
	}
	if req.Width != 512 || req.Height != 512 || req.Samples != 1 || req.NumInferenceSteps != 20 {
		t.Fatalf("unexpected dimensions: %+v", req)
	}
	if req.SafetyChecker != "yes" || req.EnhancePrompt != "yes" || req.GuidanceScale != 7.5 {
		t.Fatalf("unexpected flags: %+v", req)
	}
	if !f.deadline {
		t.Fatal("expected upstream call to carry a deadline")
	}
}

func TestSubmitTransportError(t *testing.T) {
	f := &fakeUpstream{err: errors.New("connection refused")}
	_, err := newProxy(t, f, "key").Submit(context.Background(), "a cat")
	if !apperr.Is(err, apperr.KindUpstream) {
		t.Fatalf("error = %v, want upstream", err)
	}
	if !strings.Contains(apperr.PublicMessage(err), "connection refused") {
		t.Fatalf("message = %q", apperr.PublicMessage(err))
	}
}

func TestPollInterpretsResponses(t *testing.T) {
	const pollURL = "https://stablediffusionapi.com/api/v3/fetch/42"
	tests := []struct {
		name    string
		body    string
		want    Result
		wantErr string
	}{
		{
			name: "success",
			body: `{"status":"success","output":["http://img2"]}`,
			want: Result{Status: StatusSuccess, ImageURL: "http://img2"},
		},
		{
			name: "still processing",
			body: `{"status":"processing","eta":"5"}`,
			want: Result{Status: StatusProcessing, PollURL: pollURL, ETASeconds: 5},
		},
		{
			name:    "success without output",
			body:    `{"status":"success","output":[]}`,
			wantErr: defaultFetch,
		},
		{
			name:    "failed with message",
			body:    `{"status":"failed","message":"Request not found"}`,
			wantErr: "Request not found",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := &fakeUpstream{fetchBody: tc.body}
			got, err := newProxy(t, f, "key").Poll(context.Background(), pollURL)
			if tc.wantErr != "" {
				if !apperr.Is(err, apperr.KindUpstream) || apperr.PublicMessage(err) != tc.wantErr {
					t.Fatalf("error = %v, want upstream %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Poll: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Poll() = %+v, want %+v", got, tc.want)
			}
			if len(f.fetches) != 1 || f.fetches[0] != pollURL {
				t.Fatalf("fetches = %v", f.fetches)
			}
		})
	}
}

func TestPollRejectsBadURLs(t *testing.T) {
	tests := []string{
		"",
		"not a url",
		"/api/v3/fetch/1",
		"ftp://stablediffusionapi.com/x",
		"http://169.254.169.254/latest/meta-data",
		"https://evil.example.com/fetch/1",
	}
	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			f := &fakeUpstream{}
			_, err := newProxy(t, f, "key").Poll(context.Background(), raw)
			if !apperr.Is(err, apperr.KindValidation) {
				t.Fatalf("Poll(%q) error = %v, want validation", raw, err)
			}
			if len(f.fetches) != 0 {
				t.Fatal("expected no upstream call")
			}
		})
	}
}

func TestTestAPIKey(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		f := &fakeUpstream{}
		_, err := newProxy(t, f, "").TestAPIKey(context.Background())
		if !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("error = %v, want validation", err)
		}
		if len(f.submits) != 0 {
			t.Fatal("expected no upstream call")
		}
	})

	t.Run("valid", func(t *testing.T) {
		f := &fakeUpstream{submitBody: `{"status":"success","output":["http://probe"]}`}
		got, err := newProxy(t, f, "key").TestAPIKey(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if !got.Valid {
			t.Fatalf("got %+v, want valid", got)
		}
		req := f.submits[0]
		if req.Width != 256 || req.Height != 256 || req.NumInferenceSteps != 1 || req.Samples != 1 {
			t.Fatalf("probe was not minimal: %+v", req)
		}
	})

	t.Run("rejected", func(t *testing.T) {
		f := &fakeUpstream{submitBody: `{"status":"error","message":"Invalid Api Key"}`}
		got, err := newProxy(t, f, "key").TestAPIKey(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if got.Valid || got.Message != "Invalid Api Key" {
			t.Fatalf("got %+v", got)
		}
	})
}

// End to end through the real wire client: submit queues, poll completes.
func TestSubmitThenPollAgainstServer(t *testing.T) {
	var base string
	polls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/text2img":
			_, _ = io.WriteString(w, `{"status":"processing","fetch_url":"`+base+`/api/v3/fetch/9","eta":3}`)
		case "/api/v3/fetch/9":
			polls++
			if polls == 1 {
				_, _ = io.WriteString(w, `{"status":"processing","eta":1}`)
				return
			}
			_, _ = io.WriteString(w, `{"status":"success","output":["http://img/9.png"]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()
	base = ts.URL

	u, _ := url.Parse(ts.URL)
	client := stablediffusion.NewClient(ts.URL+"/api/v3/text2img", ts.Client(), zerolog.Nop())
	p := NewProxy(client, Options{APIKey: "key", AllowedHosts: []string{u.Hostname()}}, zerolog.Nop())

	first, err := p.Submit(context.Background(), "a lighthouse")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if first.Status != StatusProcessing || first.ETASeconds != 3 {
		t.Fatalf("Submit() = %+v", first)
	}

	second, err := p.Poll(context.Background(), first.PollURL)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if second.Status != StatusProcessing || second.ETASeconds != 1 || second.PollURL != first.PollURL {
		t.Fatalf("first Poll() = %+v", second)
	}

	third, err := p.Poll(context.Background(), second.PollURL)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if third.Status != StatusSuccess || third.ImageURL != "http://img/9.png" {
		t.Fatalf("second Poll() = %+v", third)
	}
}
