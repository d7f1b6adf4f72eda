package utils

import (
	"strings"
	"testing"
	"time"
)

func TestGenerateMessageID(t *testing.T) {
	id1 := GenerateMessageID()
	id2 := GenerateMessageID()

	if id1 == id2 {
		t.Error("expected different IDs")
	}
	if !strings.HasPrefix(id1, "local_") {
		t.Errorf("expected prefix 'local_', got %s", id1)
	}
}

func TestFormatCallDuration(t *testing.T) {
	tests := []struct {
		seconds  int64
		expected string
	}{
		{0, "0:00"},
		{1, "0:01"},
		{59, "0:59"},
		{125, "2:05"},
		{3599, "59:59"},
		{3600, "1:00:00"},
		{3725, "1:02:05"},
		{-4, "0:00"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := FormatCallDuration(tt.seconds); got != tt.expected {
				t.Errorf("FormatCallDuration(%d) = %q, want %q", tt.seconds, got, tt.expected)
			}
		})
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"normal string", "hello", "hello"},
		{"with control chars", "hello\x00world", "helloworld"},
		{"with newline", "hello\nworld", "hello\nworld"},
		{"with whitespace", "  hello  ", "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := SanitizeString(tt.input); result != tt.expected {
				t.Errorf("SanitizeString(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestMaskSensitive(t *testing.T) {
	tests := []struct {
		input        string
		visibleChars int
		expected     string
	}{
		{"eyJhbGciOi", 3, "eyJ*******"},
		{"token", 2, "to***"},
		{"short", 10, "*****"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := MaskSensitive(tt.input, tt.visibleChars); result != tt.expected {
				t.Errorf("MaskSensitive(%q, %d) = %q, want %q", tt.input, tt.visibleChars, result, tt.expected)
			}
		})
	}
}

func TestIsExpired(t *testing.T) {
	now := time.Now()

	if !IsExpired(now.Add(-2*time.Hour), 1*time.Hour) {
		t.Error("expected expired timestamp")
	}
	if IsExpired(now.Add(-30*time.Minute), 1*time.Hour) {
		t.Error("expected non-expired timestamp")
	}
}

func TestIsEmpty(t *testing.T) {
	for input, expected := range map[string]bool{"": true, "   ": true, "hello": false} {
		if result := IsEmpty(input); result != expected {
			t.Errorf("IsEmpty(%q) = %v, want %v", input, result, expected)
		}
	}
}
