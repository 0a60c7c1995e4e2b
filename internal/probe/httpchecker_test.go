package probe

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
)

func TestHTTPChecker_StatusOK(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	}))
	defer s.Close()

	chk := NewHTTPChecker(2 * time.Second)
	out := chk.Check(context.Background(), s.URL)
	if out.Status != 200 || out.Error != "" {
		t.Fatalf("want status 200 without error, got %+v", out)
	}
	if out.LatencyMS < 0 {
		t.Fatalf("latency should be >= 0, got %d", out.LatencyMS)
	}
}

func TestHTTPChecker_ServerErrorIsAValidOutcome(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", 500)
	}))
	defer s.Close()

	chk := NewHTTPChecker(2 * time.Second)
	out := chk.Check(context.Background(), s.URL)
	if out.Status != 500 {
		t.Fatalf("want status 500, got %d", out.Status)
	}
	if out.Error != "" {
		t.Fatalf("a received 500 must not carry an error, got %q", out.Error)
	}
}

func TestHTTPChecker_NotFound(t *testing.T) {
	s := httptest.NewServer(http.NotFoundHandler())
	defer s.Close()

	out := NewHTTPChecker(2*time.Second).Check(context.Background(), s.URL)
	if out.Status != 404 || out.Error != "" {
		t.Fatalf("want plain 404, got %+v", out)
	}
}

func TestHTTPChecker_Timeout(t *testing.T) {
	// Server sleeps longer than client timeout
	release := make(chan struct{})
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(200)
	}))
	defer s.Close()
	defer close(release)

	timeout := 100 * time.Millisecond
	chk := NewHTTPChecker(timeout)
	out := chk.Check(context.Background(), s.URL)
	if out.Status != domain.StatusTransportFailure {
		t.Fatalf("want sentinel status, got %d", out.Status)
	}
	if out.Error != ErrTextTimeout {
		t.Fatalf("want %q, got %q", ErrTextTimeout, out.Error)
	}
	if out.LatencyMS < timeout.Milliseconds() || out.LatencyMS > timeout.Milliseconds()+400 {
		t.Fatalf("latency %dms not close to timeout %s", out.LatencyMS, timeout)
	}
}

func TestHTTPChecker_ConnectionRefused(t *testing.T) {
	// grab a free port, then close it so nothing listens there
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	out := NewHTTPChecker(2*time.Second).Check(context.Background(), "http://"+addr)
	if out.Status != domain.StatusTransportFailure || out.Error != ErrTextNoResponse {
		t.Fatalf("want sentinel + %q, got %+v", ErrTextNoResponse, out)
	}
}

func TestHTTPChecker_ClosedWithoutResponse(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Errorf("hijack unsupported")
			return
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			conn.Close()
		}
	}))
	defer s.Close()

	out := NewHTTPChecker(2*time.Second).Check(context.Background(), s.URL)
	if out.Error != ErrTextNoResponse {
		t.Fatalf("want %q, got %+v", ErrTextNoResponse, out)
	}
}

func TestHTTPChecker_InvalidURL(t *testing.T) {
	out := NewHTTPChecker(time.Second).Check(context.Background(), "ht!tp://bad url")
	if out.Status != domain.StatusTransportFailure || out.Error == "" {
		t.Fatalf("want sentinel with message, got %+v", out)
	}
}

func TestHTTPChecker_UnsupportedScheme(t *testing.T) {
	out := NewHTTPChecker(time.Second).Check(context.Background(), "ftp://example.com")
	if out.Status != domain.StatusTransportFailure {
		t.Fatalf("want sentinel, got %+v", out)
	}
	if out.Error == ErrTextTimeout || out.Error == ErrTextNoResponse || out.Error == "" {
		t.Fatalf("want the underlying message, got %q", out.Error)
	}
}
