package cli

import (
	"bytes"
	"strings"
	"testing"
)

func newTestPrompter(input string) (*Prompter, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &Prompter{In: strings.NewReader(input), Out: out}, out
}

func TestAsk(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		defaultVal string
		want       string
	}{
		{"typed answer", "hello\n", "default", "hello"},
		{"empty uses default", "\n", "fallback", "fallback"},
		{"whitespace uses default", "   \n", "fallback", "fallback"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, _ := newTestPrompter(tc.input)
			if got := p.Ask("Name", tc.defaultVal); got != tc.want {
				t.Errorf("Ask() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestAskPasswordFallback(t *testing.T) {
	// Not a real terminal, so it falls back to plain read.
	p, _ := newTestPrompter("secret123\n")
	if got := p.AskPassword("Password"); got != "secret123" {
		t.Errorf("AskPassword() = %q, want %q", got, "secret123")
	}
}

func TestAskInt(t *testing.T) {
	p, _ := newTestPrompter("5\n")
	if got := p.AskInt("Count", 1, 1, 100); got != 5 {
		t.Errorf("AskInt() = %d, want 5", got)
	}

	p, _ = newTestPrompter("\n")
	if got := p.AskInt("Count", 3, 1, 100); got != 3 {
		t.Errorf("AskInt() = %d, want 3 (default)", got)
	}

	// Invalid and out-of-range input re-prompts until a valid answer arrives.
	p, out := newTestPrompter("abc\n200\n7\n")
	if got := p.AskInt("Count", 1, 1, 100); got != 7 {
		t.Errorf("AskInt() = %d, want 7 after retries", got)
	}
	if !strings.Contains(out.String(), "between 1 and 100") {
		t.Error("expected range hint in output")
	}
}

func TestChoose(t *testing.T) {
	options := []string{"alpha", "beta", "gamma"}

	p, _ := newTestPrompter("2\n")
	if got := p.Choose("Pick one", options, 0); got != "beta" {
		t.Errorf("Choose() = %q, want %q", got, "beta")
	}

	p, _ = newTestPrompter("\n")
	if got := p.Choose("Pick one", options, 1); got != "beta" {
		t.Errorf("Choose() = %q, want default %q", got, "beta")
	}

	p, _ = newTestPrompter("9\n1\n")
	if got := p.Choose("Pick one", options, 0); got != "alpha" {
		t.Errorf("Choose() = %q, want %q after invalid choice", got, "alpha")
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		defaultYes bool
		want       bool
	}{
		{"yes", "y\n", false, true},
		{"no", "n\n", true, false},
		{"default yes", "\n", true, true},
		{"default no", "\n", false, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, _ := newTestPrompter(tc.input)
			if got := p.Confirm("Continue?", tc.defaultYes); got != tc.want {
				t.Errorf("Confirm() = %v, want %v", got, tc.want)
			}
		})
	}
}
