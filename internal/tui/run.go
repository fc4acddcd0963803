package tui

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/review"
)

// Run drives the batch review TUI over the session until the user saves
// or quits. The session's review machine must already hold a batch.
func Run(ctx context.Context, session Session) error {
	if session == nil {
		return fmt.Errorf("session is required")
	}
	if phase := session.ReviewPhase(); phase != review.PhaseReviewing {
		return fmt.Errorf("no batch under review (phase %s)", phase)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Restore the terminal on any exit path. Best effort; bubbletea does
	// its own teardown when it exits cleanly.
	cleanupTerminal := func() {
		_, _ = os.Stdout.Write([]byte("\033[?1049l")) // Exit alternate screen
		_, _ = os.Stdout.Write([]byte("\033[?25h"))   // Show cursor
		_, _ = os.Stdout.Write([]byte("\033[m"))      // Reset colors
	}
	defer cleanupTerminal()

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	p := tea.NewProgram(
		New(ctx, session),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	if _, err := p.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("review UI failed: %w", err)
	}
	return nil
}
