package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"marketauth/internal/auth"
)

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{
			name: "generic error",
			err:  errors.New("something broke"),
			want: ExitCodeError,
		},
		{
			name: "auth required",
			err:  errAuthRequired,
			want: ExitCodeAuthRequired,
		},
		{
			name: "wrapped auth required",
			err:  fmt.Errorf("status: %w", errAuthRequired),
			want: ExitCodeAuthRequired,
		},
		{
			name: "callback error",
			err:  &auth.CallbackError{Reason: auth.CallbackTimeout},
			want: ExitCodeAuthFailed,
		},
		{
			name: "wrapped token error",
			err:  fmt.Errorf("authentication failed: %w", &auth.TokenError{Reason: "refresh rejected"}),
			want: ExitCodeAuthFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getExitCode(tt.err); got != tt.want {
				t.Errorf("getExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestVersionCommand(t *testing.T) {
	SetVersion("1.2.3")

	cmd := newVersionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.Run(cmd, nil)

	if !strings.Contains(out.String(), "marketauth version 1.2.3") {
		t.Errorf("unexpected version output: %q", out.String())
	}
}

func TestFormatExpiry(t *testing.T) {
	if got := formatExpiry(time.Time{}); got != "unknown" {
		t.Errorf("zero time formatted as %q", got)
	}

	future := formatExpiry(time.Now().Add(time.Hour))
	if !strings.Contains(future, "(in ") {
		t.Errorf("future expiry missing direction: %q", future)
	}

	past := formatExpiry(time.Now().Add(-time.Hour))
	if !strings.Contains(past, "ago)") {
		t.Errorf("past expiry missing direction: %q", past)
	}
}
