package notify

import (
	"testing"
)

func TestNewBridge(t *testing.T) {
	if bridge, err := NewBridge("zellij"); err != nil {
		t.Errorf("NewBridge(zellij) returned an error: %v", err)
	} else if _, ok := bridge.(*ZellijBridge); !ok {
		t.Errorf("Expected a ZellijBridge, got %T", bridge)
	}

	if bridge, err := NewBridge("tmux"); err != nil {
		t.Errorf("NewBridge(tmux) returned an error: %v", err)
	} else if _, ok := bridge.(*TmuxBridge); !ok {
		t.Errorf("Expected a TmuxBridge, got %T", bridge)
	}

	if _, err := NewBridge("screen"); err == nil {
		t.Error("Expected an error for an unsupported multiplexer")
	}
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "'plain'"},
		{"two words", "'two words'"},
		{"it's", `'it'\''s'`},
		{"a;rm -rf /", "'a;rm -rf /'"},
	}

	for _, tt := range tests {
		if got := shellQuote(tt.in); got != tt.want {
			t.Errorf("shellQuote(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
