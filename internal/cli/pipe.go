package cli

import (
	"bufio"
	"context"
	"io"
)

// ForwardLines types each line read from r on the device. It returns when
// r is exhausted or ctx ends.
func ForwardLines(ctx context.Context, r io.Reader, send func(string)) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			return err
		case line := <-lines:
			if line != "" {
				send(line)
			}
		}
	}
}
