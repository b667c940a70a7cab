package testutils

import (
	"fmt"
	"strings"
	"testing"
)

// recordingT captures Errorf calls so asserter failures can be inspected
type recordingT struct {
	messages []string
}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.messages = append(r.messages, fmt.Sprintf(format, args...))
}

func TestTextAsserter_DefaultOptions(t *testing.T) {
	opts := NewTextAsserter(t).GetOptions()
	if opts.IgnoreTrailingWhitespace || opts.IgnoreEmptyLines || opts.TrimSpace || opts.EnableColors {
		t.Errorf("Expected whitespace handling and colors to be off by default, got %+v", opts)
	}
	if !opts.StripANSI {
		t.Error("Expected StripANSI to be true by default")
	}
}

func TestTextAsserter_Normalization(t *testing.T) {
	tests := []struct {
		name     string
		opts     []TextOption
		actual   string
		expected string
		wantDiff bool
	}{
		{name: "identical", actual: "hello world", expected: "hello world"},
		{name: "different", actual: "hello world", expected: "hello universe", wantDiff: true},
		{name: "leading whitespace is significant", actual: "  hello", expected: "hello", wantDiff: true},
		{name: "trailing whitespace kept", actual: "hello  \nworld", expected: "hello\nworld", wantDiff: true},
		{
			name:     "trailing whitespace ignored",
			opts:     []TextOption{WithIgnoreTrailingWhitespace(true)},
			actual:   "hello  \nworld\t",
			expected: "hello\nworld",
		},
		{name: "empty lines kept", actual: "hello\n\nworld", expected: "hello\nworld", wantDiff: true},
		{
			name:     "empty lines ignored",
			opts:     []TextOption{WithIgnoreEmptyLines(true)},
			actual:   "hello\n\nworld\n\n",
			expected: "hello\nworld",
		},
		{
			name:     "trim space",
			opts:     []TextOption{WithTrimSpace(true)},
			actual:   "\n  hello\nworld  \n",
			expected: "hello\nworld",
		},
		{name: "ansi stripped", actual: "\x1b[1mbold\x1b[0m \x1b[32m✔\x1b[0m", expected: "bold ✔"},
		{
			name:     "ansi kept",
			opts:     []TextOption{WithStripANSI(false)},
			actual:   "\x1b[1mbold\x1b[0m",
			expected: "bold",
			wantDiff: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diff := NewTextAsserter(t).WithOptions(tt.opts...).diff(tt.actual, tt.expected)
			if tt.wantDiff && diff == "" {
				t.Error("Expected a diff")
			}
			if !tt.wantDiff && diff != "" {
				t.Errorf("Expected no diff, got:\n%s", diff)
			}
		})
	}
}

func TestTextAsserter_UnifiedDiff(t *testing.T) {
	rt := &recordingT{}
	NewTextAsserter(rt).Assert("line1\nline2 changed\nline3", "line1\nline2\nline3")

	if len(rt.messages) != 1 {
		t.Fatalf("Expected exactly one failure, got %d", len(rt.messages))
	}
	msg := rt.messages[0]
	for _, want := range []string{"--- expected", "+++ actual", "-line2", "+line2 changed"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Expected diff to contain %q, got:\n%s", want, msg)
		}
	}
}

func TestTextAsserter_ColoredDiff(t *testing.T) {
	diff := NewTextAsserter(t).WithOptions(WithEnableColors(true)).diff("a b", "a c")
	if !strings.Contains(diff, "\x1b[") {
		t.Errorf("Expected ANSI escapes in colored diff, got:\n%s", diff)
	}
	if !strings.Contains(diff, "a·b") {
		t.Errorf("Expected visible whitespace in changed lines, got:\n%s", diff)
	}
}

func TestTextAsserter_PassDoesNotReport(t *testing.T) {
	rt := &recordingT{}
	NewTextAsserter(rt).Assert("same", "same")
	if len(rt.messages) != 0 {
		t.Errorf("Expected no failures, got %v", rt.messages)
	}
}
