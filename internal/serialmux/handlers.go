package serialmux

import (
	"context"
	"fmt"
	"strings"

	"github.com/banshee-data/trackcoach/internal/monitoring"
)

const (
	LineTelemetry = "telemetry"
	LineComment   = "comment"
	LineUnknown   = "unknown"
)

// ClassifyLine inspects a line from the radio. JSON objects are telemetry,
// lines starting with '#' are radio status chatter.
func ClassifyLine(line string) string {
	line = strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(line, "{"):
		return LineTelemetry
	case strings.HasPrefix(line, "#"):
		return LineComment
	default:
		return LineUnknown
	}
}

// Forward subscribes to src and passes every telemetry line to handle until
// ctx is done or src is closed.
func Forward(ctx context.Context, src LineSource, handle func([]byte)) {
	id, lines := src.Subscribe()
	defer src.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			switch ClassifyLine(line) {
			case LineTelemetry:
				handle([]byte(line))
			case LineComment:
				monitoring.Debugf("serial: %s", line)
			default:
				monitoring.Logf("serial: skipping unrecognised line %q", line)
			}
		}
	}
}

// SplitCommands splits a ';'-separated command list, dropping blanks.
func SplitCommands(list string) []string {
	var out []string
	for _, cmd := range strings.Split(list, ";") {
		if cmd = strings.TrimSpace(cmd); cmd != "" {
			out = append(out, cmd)
		}
	}
	return out
}

// SendCommands writes each command to the radio in order, stopping at the
// first failure.
func SendCommands(src LineSource, commands []string) error {
	for _, cmd := range commands {
		if err := src.SendCommand(cmd); err != nil {
			return fmt.Errorf("serial command %q: %w", cmd, err)
		}
		monitoring.Logf("serial: sent %q", cmd)
	}
	return nil
}
