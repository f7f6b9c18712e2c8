package stream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// SessionParam is the query parameter carrying the session id. The push
// endpoint cannot take custom headers.
const SessionParam = "session_id"

// ErrStreamEnded is returned by Next when the server closes the stream.
var ErrStreamEnded = errors.New("stream: server closed the connection")

// SSETransport connects to a text/event-stream endpoint.
type SSETransport struct {
	endpoint string
	client   *http.Client
}

// NewSSETransport creates a transport for endpoint. A nil client uses a
// client without a timeout, since the response body stays open.
func NewSSETransport(endpoint string, client *http.Client) *SSETransport {
	if client == nil {
		client = &http.Client{}
	}
	return &SSETransport{endpoint: endpoint, client: client}
}

func (t *SSETransport) Open(ctx context.Context, sessionID string) (Conn, error) {
	u, err := withSession(t.endpoint, sessionID)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("connect: unexpected status %d", resp.StatusCode)
	}

	return &sseConn{body: resp.Body, r: bufio.NewReader(resp.Body)}, nil
}

type sseConn struct {
	body io.ReadCloser
	r    *bufio.Reader
}

// Next returns the data of the next complete event. Comment lines and
// event names are skipped; multi-line data is joined with newlines.
func (c *sseConn) Next(ctx context.Context) ([]byte, error) {
	var data []byte
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line, err := c.r.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrStreamEnded
			}
			return nil, err
		}
		line = bytes.TrimRight(line, "\r\n")

		if len(line) == 0 {
			if data != nil {
				return data, nil
			}
			continue
		}
		if line[0] == ':' {
			continue
		}

		field, value, _ := bytes.Cut(line, []byte(":"))
		if string(field) != "data" {
			continue
		}
		value = bytes.TrimPrefix(value, []byte(" "))
		if data != nil {
			data = append(data, '\n')
		}
		data = append(data, value...)
	}
}

func (c *sseConn) Close() error {
	return c.body.Close()
}

func withSession(endpoint, sessionID string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set(SessionParam, sessionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
