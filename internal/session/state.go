// Package session runs one remote view: a paced video pull stream, a
// self-healing control channel and the input translator that feeds it.
package session

import (
	"errors"
	"fmt"
)

// State is the session's control connectivity.
type State int

const (
	StateOpening State = iota
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// LogFunc receives every significant channel transition together with the
// session state at the time.
type LogFunc func(state State, message string)

var (
	ErrAlreadyMounted = errors.New("session already mounted")
	ErrVideoClosed    = errors.New("video stream ended")
	ErrReconnectLimit = errors.New("control reconnect limit reached")
	ErrStopped        = errors.New("session stopped")
)

// sessionState is shared by both channels and touched only on the loop.
type sessionState struct {
	current State
	sink    LogFunc
}

func (s *sessionState) set(st State) { s.current = st }

func (s *sessionState) log(msg string) {
	if s.sink != nil {
		s.sink(s.current, msg)
	}
}
