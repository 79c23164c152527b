// Package supervisor owns the lifecycle of bot OS processes: spawning,
// output streaming, exit observation, and status write-back. The handle table
// is the only shared mutable state and every mutation happens under one
// mutex, held for the full check-then-insert sequence so two concurrent
// starts cannot both spawn.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/bothive/bothive/internal/errs"
	"github.com/bothive/bothive/internal/log"
	"github.com/bothive/bothive/internal/logsink"
	"github.com/bothive/bothive/internal/registry"
)

// chunkSize bounds a single forwarded output chunk. Output is streamed, never
// buffered in the supervisor.
const chunkSize = 4096

var defaultInterpreters = map[string]string{
	"javascript": "node",
	"python":     "python3",
}

type handle struct {
	botID string
	cmd   *exec.Cmd
}

// Supervisor tracks at most one live process per bot id.
type Supervisor struct {
	mu      sync.Mutex
	handles map[string]*handle

	files        EntryResolver
	status       StatusWriter
	sink         logsink.Sink
	interpreters map[string]string
	logger       *slog.Logger
}

// Option adjusts supervisor construction.
type Option func(*Supervisor)

// WithInterpreter overrides the binary used to run a language's entry file.
func WithInterpreter(language, bin string) Option {
	return func(s *Supervisor) {
		s.interpreters[language] = bin
	}
}

func New(files EntryResolver, status StatusWriter, sink logsink.Sink, opts ...Option) *Supervisor {
	s := &Supervisor{
		handles:      make(map[string]*handle),
		files:        files,
		status:       status,
		sink:         sink,
		interpreters: make(map[string]string, len(defaultInterpreters)),
		logger:       log.WithComponent("supervisor"),
	}
	for lang, bin := range defaultInterpreters {
		s.interpreters[lang] = bin
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start spawns the bot's process if it is not already running. A second call
// while a handle exists is a no-op. Spawn failures surface as process errors
// and are never retried; restart is only via an explicit subsequent Start.
func (s *Supervisor) Start(ctx context.Context, bot *registry.Bot) error {
	botLogger := s.logger.With("bot_id", bot.ID, "bot_name", bot.Name)

	s.mu.Lock()
	if _, ok := s.handles[bot.ID]; ok {
		s.mu.Unlock()
		botLogger.Debug("start ignored, bot already running")
		return nil
	}

	entry, err := s.files.ResolveEntry(bot.Dir, bot.Language)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("resolve entry for bot %q: %w", bot.ID, err)
	}

	bin, ok := s.interpreters[bot.Language]
	if !ok {
		s.mu.Unlock()
		return errs.Validationf("no interpreter for language %q", bot.Language)
	}

	cmd := exec.Command(bin, entry)
	cmd.Dir = bot.Dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.mu.Unlock()
		return errs.Processf("stdout pipe: %v", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.mu.Unlock()
		return errs.Processf("stderr pipe: %v", err)
	}

	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		return errs.Processf("spawn %s %s: %v", bin, entry, err)
	}

	h := &handle{botID: bot.ID, cmd: cmd}
	s.handles[bot.ID] = h
	s.mu.Unlock()

	botLogger.Info("bot process started", "entry", entry, "pid", cmd.Process.Pid)

	go s.pump(bot, "stdout", stdout)
	go s.pump(bot, "stderr", stderr)

	// The running write must land before the exit observer exists, so a fast
	// exit can never have its stopped write overtaken by a late running one.
	statusErr := s.status.SetBotStatus(ctx, bot.ID, registry.StatusRunning, time.Now().UTC())
	go s.observeExit(bot, h, botLogger)

	if statusErr != nil {
		return fmt.Errorf("persist running status for bot %q: %w", bot.ID, statusErr)
	}
	return nil
}

// Stop signals the bot's process and removes its handle immediately, without
// waiting for the exit observer. Stopping a bot with no handle is a no-op.
func (s *Supervisor) Stop(ctx context.Context, botID string) error {
	s.mu.Lock()
	h, ok := s.handles[botID]
	if ok {
		delete(s.handles, botID)
	}
	s.mu.Unlock()

	if !ok {
		return nil
	}

	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// The process may have exited between the table removal and the
		// signal; the exit observer handles that path.
		s.logger.Debug("signal bot process", "bot_id", botID, "error", err)
	}
	s.logger.Info("bot process stop requested", "bot_id", botID)

	if err := s.status.SetBotStatus(ctx, botID, registry.StatusStopped, time.Now().UTC()); err != nil {
		return fmt.Errorf("persist stopped status for bot %q: %w", botID, err)
	}
	return nil
}

// Running reports whether a handle exists for botID.
func (s *Supervisor) Running(botID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.handles[botID]
	return ok
}

// Shutdown sends a termination signal to every live process. It returns once
// all signals have been issued; it does not wait for exits.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	snapshot := make([]*handle, 0, len(s.handles))
	for _, h := range s.handles {
		snapshot = append(snapshot, h)
	}
	s.mu.Unlock()

	for _, h := range snapshot {
		if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			s.logger.Debug("signal bot process on shutdown", "bot_id", h.botID, "error", err)
		}
	}
	s.logger.Info("shutdown signals issued", "count", len(snapshot))
}

// pump forwards output chunks to the sink until the stream closes. A failed
// sink write drops that chunk and keeps the pump alive.
func (s *Supervisor) pump(bot *registry.Bot, stream string, r io.Reader) {
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			entry := logsink.Entry{
				BotID:   bot.ID,
				BotName: bot.Name,
				Stream:  stream,
				Chunk:   string(buf[:n]),
				At:      time.Now().UTC(),
			}
			if werr := s.sink.Write(context.Background(), entry); werr != nil {
				s.logger.Warn("drop output chunk", "bot_id", bot.ID, "stream", stream, "error", werr)
			}
		}
		if err != nil {
			return
		}
	}
}

// observeExit waits for process termination, removes the handle, and persists
// the stopped status. It tolerates racing with an explicit Stop or a restart:
// both the removal and the status write happen only while the handle is still
// this process's own.
func (s *Supervisor) observeExit(bot *registry.Bot, h *handle, logger *slog.Logger) {
	err := h.cmd.Wait()

	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if err != nil {
		logger.Warn("wait for bot process", "error", err)
	}
	logger.Info("bot process exited", "exit_code", exitCode)

	s.mu.Lock()
	owned := false
	if cur, ok := s.handles[bot.ID]; ok && cur == h {
		delete(s.handles, bot.ID)
		owned = true
	}
	s.mu.Unlock()

	if !owned {
		// An explicit stop or a restart superseded this process; that path
		// owns the status write. Stamping stopped here would clobber the
		// status of a newer live run.
		logger.Debug("exit observer superseded, skipping status write")
		return
	}

	if err := s.status.SetBotStatus(context.Background(), bot.ID, registry.StatusStopped, time.Now().UTC()); err != nil {
		logger.Warn("persist stopped status after exit", "error", err)
	}
}
