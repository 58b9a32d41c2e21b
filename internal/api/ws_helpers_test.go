package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func asCloseError(err error, target **websocket.CloseError) bool {
	return errors.As(err, target)
}

func TestCloseCodeForStatus(t *testing.T) {
	cases := map[int]int{
		http.StatusNotFound:            closeNotFound,
		http.StatusBadRequest:          websocket.CloseProtocolError,
		http.StatusUnauthorized:        websocket.ClosePolicyViolation,
		http.StatusConflict:            websocket.ClosePolicyViolation,
		http.StatusServiceUnavailable:  websocket.CloseTryAgainLater,
		http.StatusInternalServerError: websocket.CloseInternalServerErr,
	}
	for status, want := range cases {
		if got := closeCodeForStatus(status); got != want {
			t.Fatalf("status %d: expected close code %d, got %d", status, want, got)
		}
	}
}

func TestIsOriginAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://panel.local:8000/ws/robots", nil)
	if !isOriginAllowed(req, nil) {
		t.Fatalf("expected requests without origin to be allowed")
	}
	req.Header.Set("Origin", "http://panel.local:5173")
	if !isOriginAllowed(req, nil) {
		t.Fatalf("expected same-host origin to be allowed")
	}
	req.Header.Set("Origin", "http://evil.example")
	if isOriginAllowed(req, nil) {
		t.Fatalf("expected foreign origin to be rejected")
	}
	if !isOriginAllowed(req, []string{"evil.example"}) {
		t.Fatalf("expected listed origin host to be allowed")
	}
	if !isOriginAllowed(req, []string{"*"}) {
		t.Fatalf("expected wildcard to allow any origin")
	}
}

func TestTruncateCloseReason(t *testing.T) {
	long := strings.Repeat("x", 200)
	if got := truncateCloseReason(long); len(got) != 123 {
		t.Fatalf("expected 123 bytes, got %d", len(got))
	}
	if got := truncateCloseReason("short"); got != "short" {
		t.Fatalf("expected short reason unchanged, got %q", got)
	}
}

func TestSanitizeWSTargetDropsToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws/logs?token=secret&level=info", nil)
	if got := sanitizeWSTarget(req); got != "/ws/logs?level=info" {
		t.Fatalf("expected token removed, got %q", got)
	}
}
