package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// InterruptHandler cancels a context on SIGINT/SIGTERM and prints a
// friendly note instead of dying mid-scan. The in-flight request is
// snapshotted by the session, so an interrupted scan resumes or refunds on
// the next start.
type InterruptHandler struct {
	writer      io.Writer
	interrupted bool
	mu          sync.Mutex
}

// NewInterruptHandler creates an interrupt handler writing to w (stdout
// when nil).
func NewInterruptHandler(w io.Writer) *InterruptHandler {
	if w == nil {
		w = os.Stdout
	}
	return &InterruptHandler{writer: w}
}

// Handle installs the signal handler and returns the derived context.
func (h *InterruptHandler) Handle(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigChan:
			h.mu.Lock()
			if !h.interrupted {
				h.interrupted = true
				_, _ = fmt.Fprintln(h.writer)
				_, _ = fmt.Fprintln(h.writer, FormatWarning("Interrupted. Winding down; reserved credits will be refunded."))
			}
			h.mu.Unlock()
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx
}

// Interrupted reports whether a signal arrived.
func (h *InterruptHandler) Interrupted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interrupted
}
