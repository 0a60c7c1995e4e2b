package probe

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"os"
	"syscall"

	"github.com/hamed0406/sitewatch/internal/domain"
)

// Error texts recorded on checks that got no HTTP response.
const (
	ErrTextNoResponse = "No response received"
	ErrTextTimeout    = "Request timeout"
	ErrTextUnknown    = "Unknown error"
)

// Checker performs a single check for a given target URL.
// Implementations never return an error: failures are part of the Outcome.
type Checker interface {
	Check(ctx context.Context, target string) domain.Outcome
}

// classify maps a transport error to the text stored on the check.
// Timeouts are tested before connection failures, so a dial that hits the
// deadline is recorded as "Request timeout" and not "No response received",
// even though it is both a timeout and a net.OpError.
func classify(ctx context.Context, err error) string {
	if err == nil {
		return ""
	}
	if isTimeout(ctx, err) {
		return ErrTextTimeout
	}
	if isConnFailure(err) {
		return ErrTextNoResponse
	}

	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Err != nil {
		err = uerr.Err
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return ErrTextUnknown
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	if ctx.Err() == context.DeadlineExceeded {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

func isConnFailure(err error) bool {
	var (
		dnsErr *net.DNSError
		opErr  *net.OpError
	)
	switch {
	case errors.As(err, &dnsErr), errors.As(err, &opErr):
		return true
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		return true
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		// server accepted and closed without answering
		return true
	}
	return false
}
