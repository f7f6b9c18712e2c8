package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dukerupert/tasknotify/internal/model"
)

// ErrInvalid is returned for settings that fail validation, whether they
// came from the caller or the server.
var ErrInvalid = errors.New("settings: invalid")

// StatusError is a non-2xx response from the settings API.
type StatusError struct {
	Method string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("settings: %s returned status %d", e.Method, e.Code)
}

// Unauthorized reports whether the session was rejected.
func (e *StatusError) Unauthorized() bool {
	return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
}

// SessionFunc returns the current session id.
type SessionFunc func() (string, error)

// HTTPAPI talks to the remote settings endpoint. GET returns the full
// settings for the session's user; PUT accepts a partial object.
type HTTPAPI struct {
	endpoint   string
	session    SessionFunc
	httpClient *http.Client
}

// NewHTTPAPI creates an API client for endpoint.
func NewHTTPAPI(endpoint string, session SessionFunc) *HTTPAPI {
	return &HTTPAPI{
		endpoint: endpoint,
		session:  session,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Get fetches the user's settings. Fields the server omits keep their
// default values.
func (a *HTTPAPI) Get(ctx context.Context) (model.NotificationSettings, error) {
	resp, err := a.do(ctx, http.MethodGet, nil)
	if err != nil {
		return model.NotificationSettings{}, err
	}
	defer resp.Body.Close()

	s := model.DefaultNotificationSettings()
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return model.NotificationSettings{}, fmt.Errorf("decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return model.NotificationSettings{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return s, nil
}

// Put sends a partial update.
func (a *HTTPAPI) Put(ctx context.Context, patch model.SettingsPatch) error {
	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("marshal patch: %w", err)
	}
	resp, err := a.do(ctx, http.MethodPut, body)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (a *HTTPAPI) do(ctx context.Context, method string, body []byte) (*http.Response, error) {
	session, err := a.session()
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	var req *http.Request
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, a.endpoint, bytes.NewReader(body))
	} else {
		req, err = http.NewRequestWithContext(ctx, method, a.endpoint, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+session)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s settings: %w", method, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &StatusError{Method: method, Code: resp.StatusCode}
	}
	return resp, nil
}
