// Package session drives the operator loop: it reads commands, handles the
// undo and redo built-ins itself and runs everything else against the
// mounted store, one journal batch per command.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"undofs/internal/engine"
	"undofs/internal/journal"
	"undofs/internal/logging"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

var (
	sessionLogger = logging.GetLogger().WithPrefix("session")

	refusal = color.New(color.FgRed)
	notice  = color.New(color.FgYellow)
)

// DefaultPrompt is shown before every command.
const DefaultPrompt = "undoshell: "

// Invalidator brings host-side caches in line with a replay.
type Invalidator interface {
	Invalidate(r *engine.Replay)
}

// Session is one operator loop over an engine.
type Session struct {
	engine      *engine.Engine
	runner      Runner
	invalidator Invalidator
	unmount     func() error
	prompt      string
	out         io.Writer

	// redoAvailable is set by a successful undo and cleared by any command
	// that changed the journal.
	redoAvailable bool
}

// Option configures a Session.
type Option func(*Session)

// WithPrompt replaces DefaultPrompt.
func WithPrompt(prompt string) Option {
	return func(s *Session) {
		s.prompt = prompt
	}
}

// WithOutput sets where prompts and messages are written.
func WithOutput(w io.Writer) Option {
	return func(s *Session) {
		s.out = w
	}
}

// WithInvalidator registers the host cache to flush after replays.
func WithInvalidator(inv Invalidator) Option {
	return func(s *Session) {
		s.invalidator = inv
	}
}

// WithUnmount sets the function quit calls to tear down the mount.
func WithUnmount(unmount func() error) Option {
	return func(s *Session) {
		s.unmount = unmount
	}
}

// New creates a session that forwards non-built-in commands to runner.
func New(e *engine.Engine, runner Runner, opts ...Option) *Session {
	s := &Session{
		engine: e,
		runner: runner,
		prompt: DefaultPrompt,
		out:    os.Stdout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run reads commands from in until quit, EOF or ctx is done, then
// unmounts. A line is read only when the prompt asks for one, so anything
// typed while a command runs is left for that command.
func (s *Session) Run(ctx context.Context, in io.Reader) error {
	requests := make(chan struct{})
	results := make(chan lineResult, 1)
	defer close(requests)
	go readLines(in, requests, results)

	for {
		fmt.Fprint(s.out, s.prompt)
		requests <- struct{}{}

		var res lineResult
		select {
		case res = <-results:
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			return s.quit()
		}
		if res.err != nil {
			if !errors.Is(res.err, io.EOF) {
				sessionLogger.Warn("Reading commands: %v", res.err)
			}
			fmt.Fprintln(s.out)
			return s.quit()
		}

		command := strings.TrimSpace(res.line)
		switch command {
		case "":
		case "undo":
			s.undo()
		case "redo":
			s.redo()
		case "quit", "exit":
			return s.quit()
		case "status":
			s.status()
		case "history":
			s.history()
		default:
			s.exec(ctx, command)
		}
	}
}

func (s *Session) undo() {
	replay, err := s.engine.Undo()
	if err != nil {
		if !errors.Is(err, journal.ErrNothingToUndo) {
			sessionLogger.Error("Undo failed: %v", err)
		}
		refusal.Fprintln(s.out, "undo not possible")
		return
	}
	s.redoAvailable = true
	s.invalidate(replay)
}

func (s *Session) redo() {
	if !s.redoAvailable {
		refusal.Fprintln(s.out, "redo not possible")
		return
	}
	replay, err := s.engine.Redo()
	if err != nil {
		if !errors.Is(err, journal.ErrNothingToRedo) {
			sessionLogger.Error("Redo failed: %v", err)
		}
		refusal.Fprintln(s.out, "redo not possible")
		return
	}
	s.invalidate(replay)
}

func (s *Session) invalidate(replay *engine.Replay) {
	if s.invalidator != nil && len(replay.Paths) > 0 {
		s.invalidator.Invalidate(replay)
	}
}

// exec runs command as one batch. When the command changed the journal,
// the redo batches that were pending before it are pruned.
func (s *Session) exec(ctx context.Context, command string) {
	before := s.engine.Snapshot()
	s.engine.Begin(command)
	runErr := s.runner.Run(ctx, command)
	entries := s.engine.End()
	if runErr != nil {
		sessionLogger.Debug("Command %q: %v", command, runErr)
		notice.Fprintf(s.out, "%s: %v\n", command, runErr)
	}

	if s.engine.Snapshot().Equal(before) {
		return
	}
	pruned := s.engine.Prune(before)
	s.redoAvailable = false
	sessionLogger.Debug("Command %q recorded %d entries, pruned %d batches", command, entries, pruned)
}

func (s *Session) quit() error {
	notice.Fprintln(s.out, "Shutting down user space file system.")
	if s.unmount == nil {
		return nil
	}
	if err := s.unmount(); err != nil {
		return fmt.Errorf("unmount: %w", err)
	}
	return nil
}

func (s *Session) status() {
	st := s.engine.Status()
	fmt.Fprintf(s.out, "entries:     %d (%s)\n", st.Entries, humanize.IBytes(uint64(max(st.RootSize, 0))))
	fmt.Fprintf(s.out, "undoable:    %d\n", st.Undoable)
	fmt.Fprintf(s.out, "redoable:    %d (redo %s)\n", st.Redoable, availability(s.redoAvailable))
	fmt.Fprintf(s.out, "fingerprint: %s\n", st.Fingerprint)
}

func availability(ok bool) string {
	if ok {
		return "available"
	}
	return "not available"
}

func (s *Session) history() {
	infos := s.engine.History()
	if len(infos) == 0 {
		fmt.Fprintln(s.out, "nothing to undo")
		return
	}
	for i, info := range infos {
		fmt.Fprintf(s.out, "%3d  %-30s %s, %s\n",
			i+1, info.Label,
			humanize.Comma(int64(info.Entries))+" "+plural(info.Entries, "entry", "entries"),
			humanize.Time(info.Recorded))
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
