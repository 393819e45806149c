package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SettingResult is the response of the idempotent enable/disable operations.
type SettingResult struct {
	Enabled bool
	Changed bool
}

// API makes REST calls to the panel backend. Errors are mapped onto the
// client error taxonomy: transport failures become *NetworkError, 401/403
// become *AuthorizationError, everything else *ServerError.
type API struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewAPI(baseURL, token string) *API {
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// EnableDebug sends POST /api/settings/debug/enable.
func (a *API) EnableDebug(ctx context.Context) (SettingResult, error) {
	return a.postDebug(ctx, "/api/settings/debug/enable")
}

// DisableDebug sends POST /api/settings/debug/disable.
func (a *API) DisableDebug(ctx context.Context) (SettingResult, error) {
	return a.postDebug(ctx, "/api/settings/debug/disable")
}

func (a *API) postDebug(ctx context.Context, path string) (SettingResult, error) {
	var resp struct {
		DebugEnabled bool `json:"debugEnabled"`
		Changed      bool `json:"changed"`
	}
	if err := a.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return SettingResult{}, err
	}
	return SettingResult{Enabled: resp.DebugEnabled, Changed: resp.Changed}, nil
}

// DebugStatus fetches the server-confirmed debug logging value.
func (a *API) DebugStatus(ctx context.Context) (bool, error) {
	var resp struct {
		DebugEnabled bool `json:"debugEnabled"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/settings/debug", nil, &resp); err != nil {
		return false, err
	}
	return resp.DebugEnabled, nil
}

// Status fetches /api/server/status.
func (a *API) Status(ctx context.Context) (*ServerStatus, error) {
	var st ServerStatus
	if err := a.do(ctx, http.MethodGet, "/api/server/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// InstallServer sends POST /api/server/install.
func (a *API) InstallServer(ctx context.Context) error {
	return a.do(ctx, http.MethodPost, "/api/server/install", nil, nil)
}

// StartServer sends POST /api/server/start.
func (a *API) StartServer(ctx context.Context) error {
	return a.do(ctx, http.MethodPost, "/api/server/start", nil, nil)
}

// StopServer sends POST /api/server/stop.
func (a *API) StopServer(ctx context.Context) error {
	return a.do(ctx, http.MethodPost, "/api/server/stop", nil, nil)
}

// ListMods fetches /api/mods.
func (a *API) ListMods(ctx context.Context) ([]Mod, error) {
	var mods []Mod
	if err := a.do(ctx, http.MethodGet, "/api/mods", nil, &mods); err != nil {
		return nil, err
	}
	return mods, nil
}

func (a *API) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &AuthorizationError{Status: resp.StatusCode}
	}
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return &ServerError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &ServerError{Status: resp.StatusCode, Message: fmt.Sprintf("decode %s: %v", path, err)}
		}
	}
	return nil
}
