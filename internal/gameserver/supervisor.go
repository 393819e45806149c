package gameserver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/forgepanel/backend/internal/config"
)

// EventType classifies supervisor events delivered to observers.
type EventType int

const (
	EventState   EventType = iota // lifecycle state changed
	EventConsole                  // a console line was produced
)

// Event carries either a state change or a console line to observers.
type Event struct {
	Type  EventType
	State State
	Line  string
}

// Stats is a point-in-time snapshot of the managed process.
type Stats struct {
	State         State   `json:"state"`
	PID           int     `json:"pid,omitempty"`
	UptimeSeconds int64   `json:"uptimeSeconds,omitempty"`
	CPUPercent    float64 `json:"cpuPercent,omitempty"`
	MemoryRSS     uint64  `json:"memoryRss,omitempty"`
	Restarts      int     `json:"restarts"`
	LastError     string  `json:"lastError,omitempty"`
}

// Supervisor owns the game server process: install, start, stop, console I/O.
// All state mutation happens under mu; observers get snapshots via events.
type Supervisor struct {
	cfg    config.GameConfig
	buffer *ConsoleBuffer

	mu        sync.Mutex
	state     State
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	startedAt time.Time
	restarts  int
	lastErr   string
	subs      map[int]chan Event
	nextSub   int
}

func NewSupervisor(cfg config.GameConfig, bufferLines int) *Supervisor {
	s := &Supervisor{
		cfg:    cfg,
		buffer: NewConsoleBuffer(bufferLines),
		state:  NotInstalled,
		subs:   make(map[int]chan Event),
	}
	if cfg.WorkingDir != "" {
		if entries, err := os.ReadDir(cfg.WorkingDir); err == nil && len(entries) > 0 {
			s.state = Installed
		}
	}
	return s
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Backlog returns a copy of the retained console lines.
func (s *Supervisor) Backlog() []string {
	return s.buffer.Lines()
}

// Subscribe registers an observer. The returned cancel func must be called
// when done; events are dropped rather than blocking a slow observer.
func (s *Supervisor) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan Event, 64)
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// setStateLocked transitions to next and notifies observers. Caller holds mu.
func (s *Supervisor) setStateLocked(next State) {
	if s.state == next {
		return
	}
	log.Printf("game server: %s -> %s", s.state, next)
	s.state = next
	s.publishLocked(Event{Type: EventState, State: next})
}

func (s *Supervisor) publishLocked(ev Event) {
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *Supervisor) emitLine(line string) {
	s.buffer.Append(line)
	s.mu.Lock()
	s.publishLocked(Event{Type: EventConsole, Line: line})
	s.mu.Unlock()
}

func (s *Supervisor) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err.Error()
	s.setStateLocked(Errored)
}

// Install runs the configured install command. It returns immediately; the
// outcome is reported as a state transition (Installed or Errored).
func (s *Supervisor) Install(ctx context.Context) error {
	if len(s.cfg.InstallCmd) == 0 {
		return fmt.Errorf("no install command configured")
	}

	s.mu.Lock()
	switch s.state {
	case NotInstalled, Installed, Errored:
	default:
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("cannot install while %s", state)
	}
	s.setStateLocked(Installing)
	s.mu.Unlock()

	go func() {
		cmd := exec.CommandContext(ctx, s.cfg.InstallCmd[0], s.cfg.InstallCmd[1:]...)
		cmd.Dir = s.cfg.WorkingDir
		out, err := cmd.StdoutPipe()
		if err == nil {
			cmd.Stderr = cmd.Stdout
			err = cmd.Start()
		}
		if err != nil {
			s.fail(fmt.Errorf("install: %w", err))
			return
		}
		scanner := bufio.NewScanner(out)
		for scanner.Scan() {
			s.emitLine(scanner.Text())
		}
		if err := cmd.Wait(); err != nil {
			s.fail(fmt.Errorf("install: %w", err))
			return
		}
		s.mu.Lock()
		s.setStateLocked(Installed)
		s.mu.Unlock()
	}()
	return nil
}

// Start launches the game server process. The transition to Running happens
// when the process emits its first console line.
func (s *Supervisor) Start(ctx context.Context) error {
	if len(s.cfg.StartCmd) == 0 {
		return fmt.Errorf("no start command configured")
	}

	s.mu.Lock()
	switch s.state {
	case Installed, Errored:
	default:
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("cannot start while %s", state)
	}
	s.setStateLocked(Starting)

	cmd := exec.CommandContext(ctx, s.cfg.StartCmd[0], s.cfg.StartCmd[1:]...)
	cmd.Dir = s.cfg.WorkingDir
	stdin, err := cmd.StdinPipe()
	if err != nil {
		s.setStateLocked(Errored)
		s.lastErr = err.Error()
		s.mu.Unlock()
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.setStateLocked(Errored)
		s.lastErr = err.Error()
		s.mu.Unlock()
		return err
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		s.setStateLocked(Errored)
		s.lastErr = err.Error()
		s.mu.Unlock()
		return fmt.Errorf("start %s: %w", s.cfg.StartCmd[0], err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.startedAt = time.Now()
	s.lastErr = ""
	s.mu.Unlock()

	go s.pump(cmd, stdout)
	return nil
}

// pump reads console output until the process exits, then settles the state.
func (s *Supervisor) pump(cmd *exec.Cmd, out io.Reader) {
	scanner := bufio.NewScanner(out)
	first := true
	for scanner.Scan() {
		if first {
			first = false
			s.mu.Lock()
			if s.state == Starting && s.cmd == cmd {
				s.setStateLocked(Running)
			}
			s.mu.Unlock()
		}
		s.emitLine(scanner.Text())
	}

	err := cmd.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != cmd {
		return
	}
	s.cmd = nil
	s.stdin = nil
	stopping := s.state == Stopping
	if stopping || err == nil {
		s.setStateLocked(Installed)
		if stopping {
			s.restarts++
		}
		return
	}
	s.lastErr = err.Error()
	s.setStateLocked(Errored)
}

// Stop sends the configured stop command to the console and kills the
// process if it does not exit within the grace period.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case Starting, Running:
	default:
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("cannot stop while %s", state)
	}
	s.setStateLocked(Stopping)
	cmd := s.cmd
	stdin := s.stdin
	stopCmd := s.cfg.StopCmd
	grace := s.cfg.StopGrace
	s.mu.Unlock()

	if stdin != nil && stopCmd != "" {
		fmt.Fprintln(stdin, stopCmd)
	}

	go func() {
		if grace <= 0 {
			grace = 15 * time.Second
		}
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
		s.mu.Lock()
		stuck := s.cmd == cmd && cmd != nil
		s.mu.Unlock()
		if stuck && cmd.Process != nil {
			log.Printf("game server did not exit within %v, killing", grace)
			cmd.Process.Kill()
		}
	}()
	return nil
}

// SendCommand writes a line to the game server console.
func (s *Supervisor) SendCommand(line string) error {
	s.mu.Lock()
	stdin := s.stdin
	state := s.state
	s.mu.Unlock()
	if stdin == nil {
		return fmt.Errorf("console not available while %s", state)
	}
	_, err := fmt.Fprintln(stdin, line)
	return err
}

// SetDebug actuates the in-game debug logging toggle. A stopped server is
// not an error: the setting is applied on the next start via persisted state.
func (s *Supervisor) SetDebug(enabled bool) error {
	cmd := s.cfg.DebugOffCmd
	if enabled {
		cmd = s.cfg.DebugOnCmd
	}
	s.mu.Lock()
	stdin := s.stdin
	s.mu.Unlock()
	if stdin == nil || cmd == "" {
		return nil
	}
	_, err := fmt.Fprintln(stdin, cmd)
	return err
}
