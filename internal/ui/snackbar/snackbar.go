// Package snackbar shows transient terminal notifications that may carry one action,
// such as "Retry". Notifications print immediately; their actions wait in a queue until
// Prompt asks the user.
package snackbar

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/srg/charlist/internal/groutine"
	"golang.org/x/term"
)

// Type is the severity of a notification.
type Type int

const (
	Info Type = iota
	Success
	Warning
	Error
)

func (t Type) String() string {
	switch t {
	case Info:
		return "INFO"
	case Success:
		return "SUCCESS"
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

func (t Type) color() *color.Color {
	switch t {
	case Success:
		return color.New(color.FgGreen, color.Bold)
	case Warning:
		return color.New(color.FgYellow, color.Bold)
	case Error:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgCyan, color.Bold)
	}
}

// Notification is a shown message whose action has not been resolved yet.
type Notification struct {
	Message     string
	Type        Type
	ActionLabel string
	action      func()
}

// Snackbar prints notifications to out and reads action confirmations from in.
type Snackbar struct {
	mu          sync.Mutex
	out         io.Writer
	in          *bufio.Reader
	interactive bool
	logger      *logrus.Logger
	pending     []*Notification
	shown       int

	readOnce sync.Once
	lines    chan readResult
}

// Option configures a Snackbar.
type Option func(*Snackbar)

// WithInteractive overrides terminal detection.
func WithInteractive(interactive bool) Option {
	return func(s *Snackbar) {
		s.interactive = interactive
	}
}

// WithLogger sets the logger notifications are mirrored to at debug level.
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Snackbar) {
		s.logger = logger
	}
}

// New creates a Snackbar. The snackbar is interactive when in is a terminal.
func New(out io.Writer, in io.Reader, opts ...Option) *Snackbar {
	s := &Snackbar{
		out:         out,
		in:          bufio.NewReader(in),
		interactive: IsTerminal(in),
		lines:       make(chan readResult, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logrus.New()
		s.logger.SetOutput(io.Discard)
	}
	return s
}

// IsTerminal reports whether v is an *os.File attached to a terminal.
func IsTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Show prints message with its severity. When action is non-nil the notification is
// queued until Prompt or Dismiss resolves it.
func (s *Snackbar) Show(message string, t Type, actionLabel string, action func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.shown++
	line := fmt.Sprintf("%s %s", t.color().Sprintf("[%s]", t), message)
	if action != nil && actionLabel != "" {
		line += "  " + color.New(color.Underline).Sprint(actionLabel)
		s.pending = append(s.pending, &Notification{
			Message:     message,
			Type:        t,
			ActionLabel: actionLabel,
			action:      action,
		})
	}
	fmt.Fprintln(s.out, line)

	s.logger.WithFields(logrus.Fields{
		"type":   t.String(),
		"action": actionLabel,
	}).Debug(message)
}

// Shown returns the number of notifications shown so far.
func (s *Snackbar) Shown() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shown
}

// Pending returns the notifications whose action is still unresolved, oldest first.
func (s *Snackbar) Pending() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, 0, len(s.pending))
	for _, n := range s.pending {
		out = append(out, *n)
	}
	return out
}

// Dismiss drops every pending action without running it.
func (s *Snackbar) Dismiss() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
}

// Prompt resolves the oldest pending notification. On an interactive snackbar it asks
// "<label>? [y/N]" and runs the action on a yes. A non-interactive snackbar dismisses
// everything. Reports whether an action ran.
//
// The lock is not held while waiting for the answer. When ctx is done first every
// pending action is dismissed and ctx.Err() is returned.
func (s *Snackbar) Prompt(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return false, nil
	}
	if !s.interactive {
		s.mu.Unlock()
		s.Dismiss()
		return false, nil
	}
	n := s.pending[0]
	s.pending = s.pending[1:]
	fmt.Fprintf(s.out, "%s? [y/N] ", n.ActionLabel)
	s.mu.Unlock()

	answer, err := s.readLine(ctx)
	switch {
	case ctx.Err() != nil:
		s.endLine()
		s.Dismiss()
		return false, ctx.Err()
	case errors.Is(err, io.EOF) && answer == "":
		s.endLine()
		return false, nil
	case err != nil && !errors.Is(err, io.EOF):
		return false, fmt.Errorf("read %s confirmation: %w", strings.ToLower(n.ActionLabel), err)
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		// Run outside the lock; the action may Show again
		n.action()
		return true, nil
	default:
		return false, nil
	}
}

// endLine terminates an unanswered prompt line.
func (s *Snackbar) endLine() {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out)
}

type readResult struct {
	line string
	err  error
}

// readLine waits for the next input line or ctx. Input is read on one named goroutine
// started by the first prompt; a line read after ctx was done is kept for the next call.
func (s *Snackbar) readLine(ctx context.Context) (string, error) {
	s.readOnce.Do(func() {
		groutine.Go(context.Background(), "snackbar-input", func(context.Context) {
			defer close(s.lines)
			for {
				line, err := s.in.ReadString('\n')
				s.lines <- readResult{line: line, err: err}
				if err != nil {
					return
				}
			}
		})
	})

	select {
	case r, ok := <-s.lines:
		if !ok {
			return "", io.EOF
		}
		return r.line, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
