package mock

import (
	"context"
	"testing"
	"time"

	"github.com/forgepanel/backend/internal/gameserver"
)

func waitForState(t *testing.T, g *Generator, want gameserver.State) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for g.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %s, want %s", g.State(), want)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestGeneratorLifecycle(t *testing.T) {
	g := NewGenerator()
	if g.State() != gameserver.NotInstalled {
		t.Fatalf("initial state = %s", g.State())
	}

	if err := g.Start(context.Background()); err == nil {
		t.Error("Start succeeded while not_installed")
	}

	if err := g.Install(context.Background()); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if g.State() != gameserver.Installing {
		t.Errorf("state = %s immediately after Install, want installing", g.State())
	}
	waitForState(t, g, gameserver.Installed)

	events, cancel := g.Subscribe()
	defer cancel()

	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForState(t, g, gameserver.Running)

	sawState := false
	timeout := time.After(5 * time.Second)
	for !sawState {
		select {
		case ev := <-events:
			if ev.Type == gameserver.EventState && ev.State == gameserver.Running {
				sawState = true
			}
		case <-timeout:
			t.Fatal("running transition never delivered to subscriber")
		}
	}

	if st := g.Stats(); st.PID == 0 || st.State != gameserver.Running {
		t.Errorf("stats = %+v, want a running process", st)
	}

	if err := g.SendCommand("status"); err != nil {
		t.Errorf("SendCommand while running: %v", err)
	}

	if err := g.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	waitForState(t, g, gameserver.Installed)
	if g.Stats().Restarts != 1 {
		t.Errorf("restarts = %d, want 1", g.Stats().Restarts)
	}
}

func TestStatsConcurrentWithChatter(t *testing.T) {
	g := NewGenerator()
	if err := g.Install(context.Background()); err != nil {
		t.Fatalf("Install: %v", err)
	}
	waitForState(t, g, gameserver.Installed)
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForState(t, g, gameserver.Running)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			g.chatterTick()
		}
	}()
	for i := 0; i < 200; i++ {
		if st := g.Stats(); st.State != gameserver.Running {
			t.Fatalf("state = %s while polling, want running", st.State)
		}
	}
	<-done
}

func TestGeneratorDebugChatterToggle(t *testing.T) {
	g := NewGenerator()
	if err := g.SetDebug(true); err != nil {
		t.Fatalf("SetDebug: %v", err)
	}
	backlog := g.Backlog()
	if len(backlog) == 0 || backlog[len(backlog)-1] != "Debug logging enabled" {
		t.Errorf("backlog = %v, want debug confirmation line", backlog)
	}
}
