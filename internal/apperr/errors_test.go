package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("bad"), http.StatusBadRequest},
		{"auth", Auth("no key"), http.StatusUnauthorized},
		{"not found", NotFound("missing"), http.StatusNotFound},
		{"upstream", Upstream("boom", nil), http.StatusInternalServerError},
		{"internal", Internal("db", errors.New("conn reset")), http.StatusInternalServerError},
		{"plain error", errors.New("plain"), http.StatusInternalServerError},
		{"wrapped validation", fmt.Errorf("upload: %w", Validation("too big")), http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Status(tc.err); got != tc.want {
				t.Errorf("Status() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestPublicMessageHidesInternalCause(t *testing.T) {
	err := Internal("create image", errors.New("pq: password authentication failed"))
	if got := PublicMessage(err); got != GenericMessage {
		t.Fatalf("PublicMessage() = %q, want %q", got, GenericMessage)
	}
	if got := PublicMessage(errors.New("raw")); got != GenericMessage {
		t.Fatalf("PublicMessage(raw) = %q, want %q", got, GenericMessage)
	}
}

func TestPublicMessageSurfacesUpstreamText(t *testing.T) {
	if got := PublicMessage(Upstream("Invalid prompt", nil)); got != "Invalid prompt" {
		t.Fatalf("PublicMessage() = %q", got)
	}
	if got := PublicMessage(Upstream("", errors.New("dial tcp: refused"))); got != "dial tcp: refused" {
		t.Fatalf("PublicMessage() = %q", got)
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Internal("write upload", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the cause")
	}
	if !Is(err, KindInternal) || Is(err, KindValidation) {
		t.Fatal("unexpected kind match")
	}
}

func TestKindString(t *testing.T) {
	for kind, want := range map[Kind]string{
		KindValidation: "validation",
		KindAuth:       "auth",
		KindNotFound:   "not_found",
		KindUpstream:   "upstream",
		KindInternal:   "internal",
	} {
		if got := kind.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}
