package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// -----------------------------------------------------------------------------
// ChimeError Construction Tests
// -----------------------------------------------------------------------------

func TestNew(t *testing.T) {
	ce := New("TEST_ERROR", CategoryConfig, "test message")

	if ce.Code != "TEST_ERROR" {
		t.Errorf("expected Code 'TEST_ERROR', got %q", ce.Code)
	}
	if ce.Category != CategoryConfig {
		t.Errorf("expected Category CategoryConfig, got %v", ce.Category)
	}
	if ce.Message != "test message" {
		t.Errorf("expected Message 'test message', got %q", ce.Message)
	}
	if ce.Context == nil {
		t.Error("expected Context map to be initialized, got nil")
	}
	if ce.Cause != nil {
		t.Errorf("expected Cause to be nil, got %v", ce.Cause)
	}
}

func TestChimeError_Error(t *testing.T) {
	tests := []struct {
		name     string
		setup    func() *ChimeError
		expected string
	}{
		{
			name: "without cause",
			setup: func() *ChimeError {
				return ProtocolError(ErrHeaderOverflow, "sequence exceeds 4 bits")
			},
			expected: "PROTOCOL_HEADER_OVERFLOW: sequence exceeds 4 bits",
		},
		{
			name: "with cause",
			setup: func() *ChimeError {
				return WrapIO(fmt.Errorf("disk full"), ErrExportFailed, "failed to write session")
			},
			expected: "IO_EXPORT_FAILED: failed to write session: disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.setup().Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// Builder Pattern Tests
// -----------------------------------------------------------------------------

func TestWithContext(t *testing.T) {
	ce := New("TEST", CategoryProtocol, "test").
		WithContext("message_id", "3").
		WithContextf("sequence", 7)

	if ce.Context["message_id"] != "3" {
		t.Errorf("expected message_id context '3', got %q", ce.Context["message_id"])
	}
	if ce.Context["sequence"] != "7" {
		t.Errorf("expected sequence context '7', got %q", ce.Context["sequence"])
	}
	if got := ce.ContextString(); got != `message_id="3", sequence="7"` {
		t.Errorf("ContextString() = %q", got)
	}
}

func TestWithSuggestions(t *testing.T) {
	ce := New("TEST", CategoryConfig, "test").
		WithSuggestion("first").
		WithSuggestions("second", "third")

	if len(ce.Suggestions) != 3 {
		t.Fatalf("expected 3 suggestions, got %d", len(ce.Suggestions))
	}
	if !ce.HasSuggestions() {
		t.Error("expected HasSuggestions to be true")
	}
}

// -----------------------------------------------------------------------------
// Inspection Tests
// -----------------------------------------------------------------------------

func TestErrorsIs(t *testing.T) {
	err := ProtocolError(ErrMissingChunk, "slot 2 empty")
	target := New(ErrMissingChunk, CategoryProtocol, "")

	if !errors.Is(err, target) {
		t.Error("expected errors.Is to match on code")
	}
	if errors.Is(err, New(ErrDuplicateChunk, CategoryProtocol, "")) {
		t.Error("expected errors.Is to not match a different code")
	}
}

func TestErrorsUnwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := WrapConfig(cause, ErrConfigParseFailed, "bad yaml")

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
}

func TestIsCodeAndCategory(t *testing.T) {
	inner := ProtocolError(ErrChunkCountOverflow, "too many chunks")
	wrapped := fmt.Errorf("send failed: %w", inner)

	tests := []struct {
		name     string
		err      error
		code     string
		category Category
		wantCode bool
		wantCat  bool
	}{
		{"direct", inner, ErrChunkCountOverflow, CategoryProtocol, true, true},
		{"wrapped", wrapped, ErrChunkCountOverflow, CategoryProtocol, true, true},
		{"wrong code", inner, ErrMissingChunk, CategoryConfig, false, false},
		{"plain error", fmt.Errorf("plain"), ErrMissingChunk, CategoryProtocol, false, false},
		{"nil", nil, ErrMissingChunk, CategoryProtocol, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCode(tt.err, tt.code); got != tt.wantCode {
				t.Errorf("IsCode() = %v, want %v", got, tt.wantCode)
			}
			if got := IsCategory(tt.err, tt.category); got != tt.wantCat {
				t.Errorf("IsCategory() = %v, want %v", got, tt.wantCat)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// Formatter Tests
// -----------------------------------------------------------------------------

func TestFormat(t *testing.T) {
	err := ConfigError(ErrConfigInvalid, "primes must be distinct").
		WithContext("prime", "7").
		WithCause(fmt.Errorf("duplicate entry")).
		WithSuggestion("remove the repeated prime")

	out := (&Formatter{Indent: "  "}).Format(err)

	for _, want := range []string{
		"Error [CONFIG_INVALID]: primes must be distinct",
		`prime="7"`,
		"Cause: duplicate entry",
		"- remove the repeated prime",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestFormat_StandardError(t *testing.T) {
	out := Format(fmt.Errorf("boom"))
	if out != "Error: boom" {
		t.Errorf("Format() = %q", out)
	}
	if Format(nil) != "" {
		t.Error("expected empty output for nil error")
	}
}
