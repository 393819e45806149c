package gameserver

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/forgepanel/backend/internal/config"
)

func waitForState(t *testing.T, s *Supervisor, want State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for s.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %s, want %s", s.State(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNewSupervisorStartsNotInstalled(t *testing.T) {
	s := NewSupervisor(config.GameConfig{WorkingDir: t.TempDir()}, 100)
	if got := s.State(); got != NotInstalled {
		t.Errorf("state = %s, want not_installed", got)
	}
}

func TestNewSupervisorDetectsExistingInstall(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "server.jar"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewSupervisor(config.GameConfig{WorkingDir: dir}, 100)
	if got := s.State(); got != Installed {
		t.Errorf("state = %s, want installed", got)
	}
}

func TestInstallTransitionsToInstalled(t *testing.T) {
	dir := t.TempDir()
	cfg := config.GameConfig{WorkingDir: dir, InstallCmd: []string{"true"}}
	s := NewSupervisor(cfg, 100)
	if err := s.Install(context.Background()); err != nil {
		t.Fatalf("Install: %v", err)
	}
	waitForState(t, s, Installed)
}

func TestInstallWithoutCommand(t *testing.T) {
	s := NewSupervisor(config.GameConfig{}, 100)
	if err := s.Install(context.Background()); err == nil {
		t.Error("Install succeeded with no install command configured")
	}
}

func TestStartFromNotInstalledRejected(t *testing.T) {
	s := NewSupervisor(config.GameConfig{StartCmd: []string{"true"}}, 100)
	if err := s.Start(context.Background()); err == nil {
		t.Error("Start succeeded while not_installed")
	}
}

func TestStartRunsAndEmitsConsole(t *testing.T) {
	dir := t.TempDir()
	cfg := config.GameConfig{
		WorkingDir: dir,
		InstallCmd: []string{"true"},
		StartCmd:   []string{"sh", "-c", "echo server ready; sleep 0.2"},
	}
	s := NewSupervisor(cfg, 100)
	if err := s.Install(context.Background()); err != nil {
		t.Fatalf("Install: %v", err)
	}
	waitForState(t, s, Installed)

	events, cancel := s.Subscribe()
	defer cancel()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// First console line flips starting -> running.
	waitForState(t, s, Running)

	sawLine := false
	deadline := time.After(5 * time.Second)
	for !sawLine {
		select {
		case ev := <-events:
			if ev.Type == EventConsole && ev.Line == "server ready" {
				sawLine = true
			}
		case <-deadline:
			t.Fatal("console line never delivered")
		}
	}

	// Clean exit settles back to installed.
	waitForState(t, s, Installed)

	if lines := s.Backlog(); len(lines) == 0 || lines[0] != "server ready" {
		t.Errorf("backlog = %v, want [server ready]", lines)
	}
}

func TestCrashSettlesErrored(t *testing.T) {
	dir := t.TempDir()
	cfg := config.GameConfig{
		WorkingDir: dir,
		StartCmd:   []string{"sh", "-c", "echo boom; exit 3"},
	}
	s := NewSupervisor(cfg, 100)
	s.mu.Lock()
	s.state = Installed
	s.mu.Unlock()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForState(t, s, Errored)

	if st := s.Stats(); st.LastError == "" {
		t.Error("no lastError recorded for a crashed server")
	}
}

func TestStopSendsCommandAndSettles(t *testing.T) {
	dir := t.TempDir()
	// The fake server exits when it reads the stop command on stdin.
	cfg := config.GameConfig{
		WorkingDir: dir,
		StartCmd:   []string{"sh", "-c", `echo up; while read line; do [ "$line" = stop ] && exit 0; done`},
		StopCmd:    "stop",
		StopGrace:  5 * time.Second,
	}
	s := NewSupervisor(cfg, 100)
	s.mu.Lock()
	s.state = Installed
	s.mu.Unlock()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForState(t, s, Running)

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	waitForState(t, s, Installed)

	if got := s.Stats().Restarts; got != 1 {
		t.Errorf("restarts = %d, want 1", got)
	}
}

func TestStopKillsWedgedProcessAfterGrace(t *testing.T) {
	dir := t.TempDir()
	// This fake server ignores the stop command entirely.
	cfg := config.GameConfig{
		WorkingDir: dir,
		StartCmd:   []string{"sh", "-c", "echo up; while true; do sleep 1; done"},
		StopCmd:    "stop",
		StopGrace:  200 * time.Millisecond,
	}
	s := NewSupervisor(cfg, 100)
	s.mu.Lock()
	s.state = Installed
	s.mu.Unlock()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForState(t, s, Running)

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	// The watchdog must force-kill once the grace elapses, and the run
	// still settles as a stop, not a crash.
	waitForState(t, s, Installed)
}

func TestSendCommandWhileStopped(t *testing.T) {
	s := NewSupervisor(config.GameConfig{}, 100)
	if err := s.SendCommand("say hi"); err == nil {
		t.Error("SendCommand succeeded with no running process")
	}
}

func TestSetDebugWhileStoppedIsNoop(t *testing.T) {
	s := NewSupervisor(config.GameConfig{DebugOnCmd: "debug on"}, 100)
	if err := s.SetDebug(true); err != nil {
		t.Errorf("SetDebug on a stopped server: %v", err)
	}
}

func TestStateStrings(t *testing.T) {
	if NotInstalled.String() != "not_installed" || Errored.String() != "error" {
		t.Error("state names drifted from the wire protocol")
	}
}
