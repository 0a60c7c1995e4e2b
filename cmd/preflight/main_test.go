package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/hamed0406/sitewatch/internal/config"
)

func TestReport_Defaults(t *testing.T) {
	var out, errOut bytes.Buffer
	if !report(&out, &errOut, config.Defaults()) {
		t.Fatalf("defaults should pass; stderr=%s", errOut.String())
	}
	if !strings.Contains(out.String(), "keeping 10,000 checks per site") {
		t.Fatalf("unexpected stdout: %s", out.String())
	}
	if !strings.Contains(errOut.String(), "history lives in memory") {
		t.Fatalf("expected memory store warning: %s", errOut.String())
	}
}

func TestReport_KeyWithWhitespaceFails(t *testing.T) {
	cfg := config.Defaults()
	cfg.AdminAPIKeys = []string{"good", "bad key"}
	var out, errOut bytes.Buffer
	if report(&out, &errOut, cfg) {
		t.Fatalf("expected failure")
	}
	if strings.Contains(out.String(), "preflight passed") {
		t.Fatalf("must not claim success")
	}
}
