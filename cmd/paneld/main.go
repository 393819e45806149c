package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/forgepanel/backend/internal/config"
	"github.com/forgepanel/backend/internal/frontend"
	"github.com/forgepanel/backend/internal/gameserver"
	"github.com/forgepanel/backend/internal/mock"
	"github.com/forgepanel/backend/internal/server"
	"github.com/forgepanel/backend/internal/store"
)

func main() {
	mockMode := flag.Bool("mock", false, "Use a synthetic game server")
	devMode := flag.Bool("dev", false, "Development mode (serve frontend from filesystem)")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Fatalf("Failed to load config: %v", err)
		}
		log.Printf("No config file at %s, using defaults", *configPath)
		cfg = config.Default()
	}

	if *port > 0 {
		cfg.Server.Port = *port
	}

	db, err := store.OpenDB(cfg.Store.Path)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer db.Close()
	st := store.New(db)

	var game server.GameServer
	if *mockMode {
		log.Println("Starting in mock mode")
		game = mock.NewGenerator()
	} else {
		game = gameserver.NewSupervisor(cfg.Game, cfg.Console.BufferLines)
	}

	// Re-apply the persisted debug toggle on startup.
	if debug, err := st.GetSetting(server.DebugSettingKey, false); err == nil && debug {
		if err := game.SetDebug(true); err != nil {
			log.Printf("debug re-apply failed: %v", err)
		}
	}

	hub := server.NewHub(game, cfg.Console.BroadcastThrottle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	frontendDir := ""
	if *devMode {
		exe, _ := os.Executable()
		frontendDir = filepath.Join(filepath.Dir(exe), "..", "..", "frontend")
		// If running with go run, the exe path is in a temp dir, use CWD instead
		if _, err := os.Stat(frontendDir); os.IsNotExist(err) {
			cwd, _ := os.Getwd()
			frontendDir = filepath.Join(cwd, "..", "frontend")
		}
	}

	// Embedded frontend handler: when built with -tags embed, serves from binary.
	// Otherwise falls back to serving from the filesystem.
	var embeddedHandler http.Handler
	if !*devMode {
		embeddedHandler = frontend.Handler()
		if embeddedHandler == nil {
			cwd, _ := os.Getwd()
			fallback := filepath.Join(cwd, "..", "frontend")
			if _, err := os.Stat(fallback); err == nil {
				log.Printf("No embedded frontend, falling back to: %s", fallback)
				embeddedHandler = http.FileServer(http.Dir(fallback))
			}
		}
	}

	srv := server.NewServer(game, st, hub, frontendDir, *devMode, embeddedHandler, cfg.Server.AllowedOrigins, cfg.Server.AuthToken)

	mux := http.NewServeMux()
	srv.SetupRoutes(mux)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		if st := game.State(); st == gameserver.Running || st == gameserver.Starting {
			if err := game.Stop(context.Background()); err != nil {
				log.Printf("stop on shutdown: %v", err)
			}
			// Stay alive through the stop grace so the force-kill
			// watchdog can still fire for a wedged process.
			deadline := time.Now().Add(cfg.Game.StopGrace + 5*time.Second)
			for {
				st := game.State()
				if st != gameserver.Running && st != gameserver.Starting && st != gameserver.Stopping {
					break
				}
				if time.Now().After(deadline) {
					log.Println("game server still not down, exiting anyway")
					break
				}
				time.Sleep(100 * time.Millisecond)
			}
		}
		cancel()
		os.Exit(0)
	}()

	if err := server.ListenAndServe(cfg.Server.Host, cfg.Server.Port, mux); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
