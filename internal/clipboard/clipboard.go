// Package clipboard copies text to the user's clipboard through the terminal.
package clipboard

import (
	"errors"
	"fmt"
	"io"
	"os"

	osc52 "github.com/aymanbagabas/go-osc52/v2"
)

// Writer places text on the clipboard.
type Writer interface {
	Copy(text string) error
}

// Multiplexer selects the escape-sequence passthrough for terminal
// multiplexers.
type Multiplexer int

const (
	MuxNone Multiplexer = iota
	MuxTmux
	MuxScreen
)

// ErrEmpty is returned when asked to copy an empty string.
var ErrEmpty = errors.New("clipboard: nothing to copy")

// OSC52 writes the OSC 52 clipboard escape sequence to a terminal.
type OSC52 struct {
	Out io.Writer
	Mux Multiplexer
}

// Compile-time interface check.
var _ Writer = (*OSC52)(nil)

// NewOSC52 returns an OSC52 writer on stderr, detecting tmux and screen from
// the environment.
func NewOSC52() *OSC52 {
	return &OSC52{Out: os.Stderr, Mux: DetectMux()}
}

// DetectMux inspects TMUX and STY.
func DetectMux() Multiplexer {
	switch {
	case os.Getenv("TMUX") != "":
		return MuxTmux
	case os.Getenv("STY") != "":
		return MuxScreen
	default:
		return MuxNone
	}
}

// Copy writes text to the clipboard. Failures are returned, not retried.
func (o *OSC52) Copy(text string) error {
	if text == "" {
		return ErrEmpty
	}
	seq := osc52.New(text)
	switch o.Mux {
	case MuxTmux:
		seq = seq.Tmux()
	case MuxScreen:
		seq = seq.Screen()
	}
	if _, err := seq.WriteTo(o.Out); err != nil {
		return fmt.Errorf("writing clipboard sequence: %w", err)
	}
	return nil
}
