package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAPIErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{"unauthorized", http.StatusUnauthorized, func(t *testing.T, err error) {
			var e *AuthorizationError
			if !errors.As(err, &e) || e.Status != http.StatusUnauthorized {
				t.Errorf("err = %v, want AuthorizationError(401)", err)
			}
		}},
		{"forbidden", http.StatusForbidden, func(t *testing.T, err error) {
			var e *AuthorizationError
			if !errors.As(err, &e) {
				t.Errorf("err = %v, want AuthorizationError", err)
			}
		}},
		{"server fault", http.StatusInternalServerError, func(t *testing.T, err error) {
			var e *ServerError
			if !errors.As(err, &e) || e.Status != http.StatusInternalServerError {
				t.Errorf("err = %v, want ServerError(500)", err)
			}
		}},
		{"conflict", http.StatusConflict, func(t *testing.T, err error) {
			var e *ServerError
			if !errors.As(err, &e) {
				t.Errorf("err = %v, want ServerError", err)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, tt.name, tt.status)
			}))
			defer srv.Close()

			_, err := NewAPI(srv.URL, "").EnableDebug(context.Background())
			if err == nil {
				t.Fatal("no error returned")
			}
			tt.check(t, err)
		})
	}
}

func TestAPINetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // refuse all connections

	_, err := NewAPI(srv.URL, "").EnableDebug(context.Background())
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("err = %T (%v), want *NetworkError", err, err)
	}
}

func TestAPIDebugRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sekrit" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/api/settings/debug/enable":
			if r.Method != http.MethodPost {
				http.Error(w, "method", http.StatusMethodNotAllowed)
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"debugEnabled": true, "changed": true})
		case "/api/settings/debug":
			json.NewEncoder(w).Encode(map[string]interface{}{"debugEnabled": true})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	api := NewAPI(srv.URL, "sekrit")

	res, err := api.EnableDebug(context.Background())
	if err != nil {
		t.Fatalf("EnableDebug: %v", err)
	}
	if !res.Enabled || !res.Changed {
		t.Errorf("result = %+v, want enabled and changed", res)
	}

	enabled, err := api.DebugStatus(context.Background())
	if err != nil {
		t.Fatalf("DebugStatus: %v", err)
	}
	if !enabled {
		t.Error("DebugStatus = false, want true")
	}
}
