package dnsapi

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapError_Nil(t *testing.T) {
	if err := WrapError("cloudflare", "get_record", nil); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestWrapError_PreservesSentinel(t *testing.T) {
	wrapped := WrapError("cloudflare", "get_record", ErrRecordNotFound)

	if !IsNotFound(wrapped) {
		t.Error("expected IsNotFound to see through the wrapper")
	}

	var pe *ProviderError
	if !errors.As(wrapped, &pe) {
		t.Fatal("expected *ProviderError")
	}
	if pe.Provider != "cloudflare" || pe.Operation != "get_record" {
		t.Errorf("unexpected context: provider=%q operation=%q", pe.Provider, pe.Operation)
	}
}

func TestProviderError_Error(t *testing.T) {
	err := &ProviderError{
		Provider:  "cloudflare",
		Operation: "create_record",
		Err:       errors.New("boom"),
	}

	want := "provider cloudflare: create_record: boom"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func TestSentinelHelpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"not found direct", ErrRecordNotFound, IsNotFound, true},
		{"not found wrapped", fmt.Errorf("lookup: %w", ErrRecordNotFound), IsNotFound, true},
		{"zone not found", WrapError("cloudflare", "zone_id", ErrZoneNotFound), IsZoneNotFound, true},
		{"unauthorized", WrapError("cloudflare", "verify", ErrUnauthorized), IsUnauthorized, true},
		{"unavailable", ErrUnavailable, IsUnavailable, true},
		{"mismatch", ErrRecordNotFound, IsZoneNotFound, false},
		{"plain error", errors.New("boom"), IsNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.check(tt.err); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestNormalizeRecordType(t *testing.T) {
	tests := []struct {
		in   string
		want RecordType
	}{
		{"a", RecordTypeA},
		{" aaaa ", RecordTypeAAAA},
		{"TXT", RecordTypeTXT},
		{"cname", RecordType("CNAME")},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeRecordType(tt.in); got != tt.want {
				t.Errorf("NormalizeRecordType(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
