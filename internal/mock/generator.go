// Package mock provides a synthetic game server for demos and frontend work
// without a real game binary. It satisfies the same surface as the real
// supervisor: lifecycle operations, console chatter, stats.
package mock

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/forgepanel/backend/internal/gameserver"
)

var chatter = []string{
	"Saving world state",
	"Player Steve joined the game",
	"Player Steve left the game",
	"Autosave complete (142ms)",
	"Spawning 12 entities in sector 7",
	"Tick budget exceeded: 54ms",
	"Weather changed to rain",
	"Chunk [14, -3] loaded",
}

var debugChatter = []string{
	"[debug] gc pause 3.1ms",
	"[debug] net: 42 packets/s",
	"[debug] pathfinding cache hit 97%",
}

type Generator struct {
	mu        sync.Mutex
	state     gameserver.State
	debug     bool
	startedAt time.Time
	restarts  int
	buffer    *gameserver.ConsoleBuffer
	subs      map[int]chan gameserver.Event
	nextSub   int
	rng       *rand.Rand
	stopTick  context.CancelFunc
}

func NewGenerator() *Generator {
	return &Generator{
		state:  gameserver.NotInstalled,
		buffer: gameserver.NewConsoleBuffer(1000),
		subs:   make(map[int]chan gameserver.Event),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (g *Generator) State() gameserver.State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Generator) Stats() gameserver.Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := gameserver.Stats{State: g.state, Restarts: g.restarts}
	if g.state == gameserver.Running {
		st.PID = 4242
		st.UptimeSeconds = int64(time.Since(g.startedAt).Seconds())
		st.CPUPercent = 20 + g.rng.Float64()*30
		st.MemoryRSS = 1 << 30
	}
	return st
}

func (g *Generator) Backlog() []string {
	return g.buffer.Lines()
}

func (g *Generator) Subscribe() (<-chan gameserver.Event, func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextSub
	g.nextSub++
	ch := make(chan gameserver.Event, 64)
	g.subs[id] = ch
	return ch, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if c, ok := g.subs[id]; ok {
			delete(g.subs, id)
			close(c)
		}
	}
}

func (g *Generator) setStateLocked(next gameserver.State) {
	if g.state == next {
		return
	}
	g.state = next
	g.publishLocked(gameserver.Event{Type: gameserver.EventState, State: next})
}

func (g *Generator) publishLocked(ev gameserver.Event) {
	for _, ch := range g.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (g *Generator) emitLine(line string) {
	g.buffer.Append(line)
	g.mu.Lock()
	g.publishLocked(gameserver.Event{Type: gameserver.EventConsole, Line: line})
	g.mu.Unlock()
}

func (g *Generator) Install(ctx context.Context) error {
	g.mu.Lock()
	switch g.state {
	case gameserver.NotInstalled, gameserver.Installed, gameserver.Errored:
	default:
		state := g.state
		g.mu.Unlock()
		return fmt.Errorf("cannot install while %s", state)
	}
	g.setStateLocked(gameserver.Installing)
	g.mu.Unlock()

	go func() {
		for i := 0; i <= 100; i += 20 {
			g.emitLine(fmt.Sprintf("Downloading server files... %d%%", i))
			select {
			case <-ctx.Done():
				return
			case <-time.After(300 * time.Millisecond):
			}
		}
		g.emitLine("Install complete")
		g.mu.Lock()
		g.setStateLocked(gameserver.Installed)
		g.mu.Unlock()
	}()
	return nil
}

func (g *Generator) Start(ctx context.Context) error {
	g.mu.Lock()
	switch g.state {
	case gameserver.Installed, gameserver.Errored:
	default:
		state := g.state
		g.mu.Unlock()
		return fmt.Errorf("cannot start while %s", state)
	}
	g.setStateLocked(gameserver.Starting)
	g.startedAt = time.Now()
	tickCtx, cancel := context.WithCancel(context.Background())
	g.stopTick = cancel
	g.mu.Unlock()

	go func() {
		g.emitLine("Loading world...")
		select {
		case <-tickCtx.Done():
			return
		case <-time.After(time.Second):
		}
		g.emitLine("Server ready, listening on 0.0.0.0:28015")
		g.mu.Lock()
		if g.state == gameserver.Starting {
			g.setStateLocked(gameserver.Running)
		}
		g.mu.Unlock()
		g.tickLoop(tickCtx)
	}()
	return nil
}

func (g *Generator) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.chatterTick()
		}
	}
}

// chatterTick emits one round of synthetic console output. The rng is
// shared with Stats, so draws happen under the mutex.
func (g *Generator) chatterTick() {
	g.mu.Lock()
	line := chatter[g.rng.Intn(len(chatter))]
	var debugLine string
	if g.debug {
		debugLine = debugChatter[g.rng.Intn(len(debugChatter))]
	}
	g.mu.Unlock()

	g.emitLine(line)
	if debugLine != "" {
		g.emitLine(debugLine)
	}
}

func (g *Generator) Stop(ctx context.Context) error {
	g.mu.Lock()
	switch g.state {
	case gameserver.Starting, gameserver.Running:
	default:
		state := g.state
		g.mu.Unlock()
		return fmt.Errorf("cannot stop while %s", state)
	}
	g.setStateLocked(gameserver.Stopping)
	cancel := g.stopTick
	g.stopTick = nil
	g.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	go func() {
		g.emitLine("Saving world before shutdown...")
		time.Sleep(500 * time.Millisecond)
		g.emitLine("Shutdown complete")
		g.mu.Lock()
		g.restarts++
		g.setStateLocked(gameserver.Installed)
		g.mu.Unlock()
	}()
	return nil
}

func (g *Generator) SendCommand(line string) error {
	g.mu.Lock()
	state := g.state
	g.mu.Unlock()
	if state != gameserver.Running && state != gameserver.Starting {
		return fmt.Errorf("console not available while %s", state)
	}
	g.emitLine("> " + line)
	g.emitLine("Unknown command: " + line)
	return nil
}

func (g *Generator) SetDebug(enabled bool) error {
	g.mu.Lock()
	g.debug = enabled
	g.mu.Unlock()
	if enabled {
		g.emitLine("Debug logging enabled")
	} else {
		g.emitLine("Debug logging disabled")
	}
	return nil
}
