package cli

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/fatih/color"

	"github.com/brporter/remoteview/internal/session"
)

var stateColors = map[session.State]*color.Color{
	session.StateOpening:      color.New(color.FgYellow),
	session.StateConnected:    color.New(color.FgGreen),
	session.StateDisconnected: color.New(color.FgRed),
}

// LogSink prints session reports as "[state] message" lines, coloured by
// state, and mirrors them to logger at debug level.
func LogSink(w io.Writer, logger *slog.Logger) session.LogFunc {
	var mu sync.Mutex
	return func(state session.State, msg string) {
		mu.Lock()
		defer mu.Unlock()
		c, ok := stateColors[state]
		if !ok {
			c = color.New(color.Reset)
		}
		c.Fprintf(w, "[%s]", state)
		fmt.Fprintf(w, " %s\n", msg)
		if logger != nil {
			logger.Debug("session", "state", state.String(), "msg", msg)
		}
	}
}
