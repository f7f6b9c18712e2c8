package desktop

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// LinePrompter asks on w and reads a y/N answer from r.
func LinePrompter(r io.Reader, w io.Writer) Prompter {
	return func(ctx context.Context) (bool, error) {
		fmt.Fprint(w, "Allow tasknotify to show desktop notifications? [y/N] ")

		answer := make(chan string, 1)
		errCh := make(chan error, 1)
		go func() {
			line, err := bufio.NewReader(r).ReadString('\n')
			if err != nil && line == "" {
				errCh <- err
				return
			}
			answer <- line
		}()

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case err := <-errCh:
			return false, fmt.Errorf("read answer: %w", err)
		case line := <-answer:
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "y", "yes":
				return true, nil
			}
			return false, nil
		}
	}
}

// Consent is used when the request itself came from an explicit user
// action, such as pressing the enable key in the terminal UI.
func Consent(context.Context) (bool, error) {
	return true, nil
}
