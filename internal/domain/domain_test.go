package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestCheckResult_Kind(t *testing.T) {
	cases := []struct {
		in   CheckResult
		want Kind
	}{
		{CheckResult{Status: 200}, KindSuccess},
		{CheckResult{Status: 204}, KindSuccess},
		{CheckResult{Status: 301}, KindHTTPError},
		{CheckResult{Status: 404}, KindHTTPError},
		{CheckResult{Status: 500}, KindHTTPError},
		{CheckResult{Status: StatusTransportFailure, Error: "Request timeout"}, KindTransportError},
	}
	for _, c := range cases {
		if got := c.in.Kind(); got != c.want {
			t.Fatalf("Kind(%+v)=%s want %s", c.in, got, c.want)
		}
	}
}

func TestParseWindow(t *testing.T) {
	for in, want := range map[string]Window{"day": WindowDay, "week": WindowWeek, "all": WindowAll, "": WindowAll} {
		got, err := ParseWindow(in)
		if err != nil || got != want {
			t.Fatalf("ParseWindow(%q)=%q,%v want %q", in, got, err, want)
		}
	}
	if _, err := ParseWindow("month"); err == nil {
		t.Fatalf("expected error for unknown window")
	}
}

func TestCheckResult_ErrorOmittedWhenEmpty(t *testing.T) {
	b, err := json.Marshal(CheckResult{
		SiteID:    "S1",
		Status:    200,
		LatencyMS: 12,
		CheckedAt: time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := m["error"]; ok {
		t.Fatalf("error key should be omitted for a received response: %s", b)
	}
	if m["site_id"] != "S1" || m["status"].(float64) != 200 {
		t.Fatalf("unexpected payload: %s", b)
	}
}
