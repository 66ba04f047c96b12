// Package provision obtains the stream endpoint of a remote device.
package provision

import (
	"context"
	"errors"
)

var ErrNoEndpoint = errors.New("no endpoint configured")

// Endpoint is where a device session streams from.
type Endpoint struct {
	URL string
	// SessionARN identifies the farm session, when there is one.
	SessionARN string
}

// Provisioner acquires a device and returns its endpoint. It blocks until
// the device is ready or ctx ends.
type Provisioner interface {
	Provision(ctx context.Context) (Endpoint, error)
}

// Static returns a fixed endpoint.
type Static struct {
	URL string
}

func (s Static) Provision(ctx context.Context) (Endpoint, error) {
	if s.URL == "" {
		return Endpoint{}, ErrNoEndpoint
	}
	if err := ctx.Err(); err != nil {
		return Endpoint{}, err
	}
	return Endpoint{URL: s.URL}, nil
}
