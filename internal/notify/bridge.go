package notify

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Bridge delivers a popup notification to the host terminal multiplexer.
// Delivery is best effort: callers log failures and move on.
type Bridge interface {
	Notify(ctx context.Context, title, body string) error
}

// NewBridge returns the bridge for the named multiplexer.
func NewBridge(multiplexer string) (Bridge, error) {
	switch multiplexer {
	case "zellij":
		return &ZellijBridge{}, nil
	case "tmux":
		return &TmuxBridge{}, nil
	default:
		return nil, fmt.Errorf("unsupported multiplexer %q (expected \"zellij\" or \"tmux\")", multiplexer)
	}
}

// ZellijBridge raises the client's floating popup pane. Zellij has no
// message payload on this action; the pane itself renders the alert.
type ZellijBridge struct{}

func (b *ZellijBridge) Notify(ctx context.Context, title, body string) error {
	cmd := exec.CommandContext(ctx, "zellij", "action", "toggle-floating-panes")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("zellij popup failed: %v: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// TmuxBridge shows the reminder in a tmux popup that closes on any key.
type TmuxBridge struct{}

func (b *TmuxBridge) Notify(ctx context.Context, title, body string) error {
	message := title
	if body != "" {
		message += "\n" + body
	}
	script := fmt.Sprintf("printf '%%s\\n' %s; read -r _", shellQuote(message))
	cmd := exec.CommandContext(ctx, "tmux", "display-popup", "-T", title, "-E", script)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("tmux popup failed: %v: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// shellQuote single-quotes s for the popup's shell command line.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
