package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/forgepanel/backend/internal/gameserver"
	"github.com/forgepanel/backend/internal/store"
)

// GameServer is the supervisor surface the panel needs. Satisfied by
// gameserver.Supervisor and by mock.Generator.
type GameServer interface {
	State() gameserver.State
	Stats() gameserver.Stats
	Install(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	SendCommand(line string) error
	SetDebug(enabled bool) error
	Backlog() []string
	Subscribe() (<-chan gameserver.Event, func())
}

// DebugSettingKey is the settings-store key for the debug logging toggle.
const DebugSettingKey = "debug_logging"

type Server struct {
	game            GameServer
	store           *store.Store
	hub             *Hub
	frontendDir     string
	dev             bool
	embeddedHandler http.Handler
	allowedOrigins  map[string]bool
	allowedHosts    map[string]bool
	authToken       string
}

func NewServer(game GameServer, st *store.Store, hub *Hub, frontendDir string, dev bool, embeddedHandler http.Handler, allowedOrigins []string, authToken string) *Server {
	s := &Server{
		game:            game,
		store:           st,
		hub:             hub,
		frontendDir:     frontendDir,
		dev:             dev,
		embeddedHandler: embeddedHandler,
		allowedOrigins:  make(map[string]bool),
		allowedHosts:    make(map[string]bool),
		authToken:       authToken,
	}

	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/console", s.handleConsole)
	mux.HandleFunc("/api/server/status", s.handleStatus)
	mux.HandleFunc("/api/server/install", s.handleLifecycle(s.game.Install))
	mux.HandleFunc("/api/server/start", s.handleLifecycle(s.game.Start))
	mux.HandleFunc("/api/server/stop", s.handleLifecycle(s.game.Stop))
	mux.HandleFunc("/api/settings/debug", s.handleGetDebug)
	mux.HandleFunc("/api/settings/debug/enable", s.handleSetDebug(true))
	mux.HandleFunc("/api/settings/debug/disable", s.handleSetDebug(false))
	mux.HandleFunc("/api/mods", s.handleMods)
	mux.HandleFunc("/api/mods/", s.handleModRoutes)

	if s.dev {
		log.Printf("Serving frontend from filesystem: %s", s.frontendDir)
		mux.Handle("/", http.FileServer(http.Dir(s.frontendDir)))
	} else if s.embeddedHandler != nil {
		log.Println("Serving embedded frontend")
		mux.Handle("/", s.embeddedHandler)
	}
}

func (s *Server) handleConsole(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("console upgrade error: %v", err)
		return
	}

	log.Printf("console client connected: %s", r.RemoteAddr)
	c := s.hub.AddClient(conn)

	go func() {
		defer func() {
			s.hub.RemoveClient(c)
			log.Printf("console client disconnected: %s", r.RemoteAddr)
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg struct {
				Type    MessageType     `json:"type"`
				Payload json.RawMessage `json:"payload"`
			}
			if err := json.Unmarshal(data, &msg); err != nil || msg.Type != MsgInput {
				continue
			}
			var in InputPayload
			if err := json.Unmarshal(msg.Payload, &in); err != nil || in.Command == "" {
				continue
			}
			if err := s.game.SendCommand(in.Command); err != nil {
				resp, _ := json.Marshal(WSMessage{Type: MsgError, Payload: ErrorPayload{Message: err.Error()}})
				select {
				case c.send <- resp:
				default:
				}
			}
		}
	}()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.game.Stats())
}

func (s *Server) handleLifecycle(op func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authorize(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := op(context.Background()); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(StatePayload{State: s.game.State()})
	}
}

type debugResponse struct {
	DebugEnabled bool `json:"debugEnabled"`
	Changed      bool `json:"changed,omitempty"`
}

func (s *Server) handleGetDebug(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	enabled, err := s.store.GetSetting(DebugSettingKey, false)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(debugResponse{DebugEnabled: enabled})
}

// handleSetDebug implements the idempotent enable/disable pair. The stored
// value is the server-confirmed truth; actuation on the live console is
// best-effort.
func (s *Server) handleSetDebug(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authorize(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		changed, err := s.store.SetSetting(DebugSettingKey, enabled)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if err := s.game.SetDebug(enabled); err != nil {
			log.Printf("debug actuation failed: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(debugResponse{DebugEnabled: enabled, Changed: changed})
	}
}

func (s *Server) handleMods(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodGet:
		mods, err := s.store.ListMods()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if mods == nil {
			mods = []store.Mod{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mods)
	case http.MethodPost:
		var req struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
			http.Error(w, "name required", http.StatusBadRequest)
			return
		}
		mod, err := s.store.AddMod(req.Name, req.Version)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(mod)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleModRoutes(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	// Parse: /api/mods/{id} or /api/mods/{id}/enable|disable
	path := strings.TrimPrefix(r.URL.Path, "/api/mods/")
	parts := strings.SplitN(path, "/", 2)
	modID, err := url.PathUnescape(parts[0])
	if err != nil || modID == "" {
		http.Error(w, "invalid mod id", http.StatusBadRequest)
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodDelete {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := s.store.RemoveMod(modID); err != nil {
			s.modError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var enabled bool
	switch parts[1] {
	case "enable":
		enabled = true
	case "disable":
		enabled = false
	default:
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err := s.store.SetModEnabled(modID, enabled); err != nil {
		s.modError(w, err)
		return
	}
	mod, err := s.store.GetMod(modID)
	if err != nil || mod == nil {
		http.Error(w, "mod not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(mod)
}

func (s *Server) modError(w http.ResponseWriter, err error) {
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "mod not found", http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}

	if r.Header.Get("X-ForgePanel-Token") == s.authToken {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}

	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}

	if host == r.Host {
		return true
	}

	if strings.HasPrefix(host, "localhost:") || host == "localhost" {
		return true
	}
	if strings.HasPrefix(host, "127.0.0.1:") || host == "127.0.0.1" {
		return true
	}
	if strings.HasPrefix(host, "[::1]:") || host == "::1" {
		return true
	}

	return false
}

func ListenAndServe(host string, port int, mux *http.ServeMux) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	log.Printf("Panel listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}
