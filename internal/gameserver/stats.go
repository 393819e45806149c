package gameserver

import (
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Stats samples the managed process. Fields that cannot be sampled (process
// not running, platform denies access) are left at their zero values.
func (s *Supervisor) Stats() Stats {
	s.mu.Lock()
	st := Stats{
		State:     s.state,
		Restarts:  s.restarts,
		LastError: s.lastErr,
	}
	cmd := s.cmd
	startedAt := s.startedAt
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return st
	}
	st.PID = cmd.Process.Pid
	st.UptimeSeconds = int64(time.Since(startedAt).Seconds())

	proc, err := process.NewProcess(int32(st.PID))
	if err != nil {
		return st
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		st.CPUPercent = cpu
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		st.MemoryRSS = mem.RSS
	}
	return st
}
