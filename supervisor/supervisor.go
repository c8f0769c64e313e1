// Package supervisor starts and stops one agent process per session. Only
// this package knows process identity; the agent itself never does.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"reel-scout/logger"
)

var (
	ErrAlreadyRunning = errors.New("session already running")
	ErrNotRunning     = errors.New("session not running")
)

// Registry maps sessions to process ids.
type Registry interface {
	Register(ctx context.Context, sessionID string, pid int) error
	Lookup(ctx context.Context, sessionID string) (int, bool, error)
	Remove(ctx context.Context, sessionID string) error
	All(ctx context.Context) (map[string]int, error)
}

type Supervisor struct {
	registry Registry
	binary   string
	extra    []string
	log      logger.Logger

	spawn func(name string, args []string) (pid int, wait func() error, err error)
	alive func(pid int) bool
	kill  func(pid int) error
}

// New supervises `binary run --session <id>` processes. extra is appended
// to every command line (for example --config).
func New(registry Registry, binary string, extra []string, log logger.Logger) *Supervisor {
	return &Supervisor{
		registry: registry,
		binary:   binary,
		extra:    extra,
		log:      log,
		spawn:    spawnProcess,
		alive:    processAlive,
		kill:     terminate,
	}
}

// Start launches the agent for sessionID and records its pid.
func (s *Supervisor) Start(ctx context.Context, sessionID string) (int, error) {
	if pid, ok, err := s.registry.Lookup(ctx, sessionID); err != nil {
		return 0, err
	} else if ok && s.alive(pid) {
		return pid, ErrAlreadyRunning
	}

	args := append([]string{"run", "--session", sessionID}, s.extra...)
	pid, wait, err := s.spawn(s.binary, args)
	if err != nil {
		return 0, fmt.Errorf("start agent for %s: %w", sessionID, err)
	}
	if err := s.registry.Register(ctx, sessionID, pid); err != nil {
		return pid, err
	}
	s.log.Info("agent started", logger.String("session_id", sessionID), logger.Int("pid", pid))

	go s.reap(sessionID, pid, wait)
	return pid, nil
}

// reap forgets the session once its process exits, unless a newer process
// took its place.
func (s *Supervisor) reap(sessionID string, pid int, wait func() error) {
	err := wait()
	ctx := context.Background()
	current, ok, lookupErr := s.registry.Lookup(ctx, sessionID)
	if lookupErr == nil && ok && current == pid {
		if err := s.registry.Remove(ctx, sessionID); err != nil {
			s.log.Warn("failed to unregister agent", logger.String("session_id", sessionID), logger.Error(err))
		}
	}
	s.log.Info("agent exited", logger.String("session_id", sessionID), logger.Int("pid", pid), logger.Error(err))
}

// Stop sends SIGTERM to the session's agent. The agent flushes its
// checkpoint before it exits.
func (s *Supervisor) Stop(ctx context.Context, sessionID string) error {
	pid, ok, err := s.registry.Lookup(ctx, sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotRunning
	}
	if s.alive(pid) {
		if err := s.kill(pid); err != nil {
			return fmt.Errorf("signal agent %d: %w", pid, err)
		}
	}
	s.log.Info("agent stopped", logger.String("session_id", sessionID), logger.Int("pid", pid))
	return s.registry.Remove(ctx, sessionID)
}

// Running reports whether a live process is registered for sessionID.
func (s *Supervisor) Running(ctx context.Context, sessionID string) bool {
	pid, ok, err := s.registry.Lookup(ctx, sessionID)
	return err == nil && ok && s.alive(pid)
}

// Prune drops registry entries whose process is gone and returns them.
func (s *Supervisor) Prune(ctx context.Context) ([]string, error) {
	all, err := s.registry.All(ctx)
	if err != nil {
		return nil, err
	}
	var pruned []string
	for id, pid := range all {
		if s.alive(pid) {
			continue
		}
		if err := s.registry.Remove(ctx, id); err != nil {
			return pruned, err
		}
		pruned = append(pruned, id)
	}
	return pruned, nil
}

func spawnProcess(name string, args []string) (int, func() error, error) {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return 0, nil, err
	}
	return cmd.Process.Pid, cmd.Wait, nil
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

func terminate(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(syscall.SIGTERM)
}
