package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/scan"
)

// BatchProgress renders a live progress bar for a running batch scan by
// polling the session's progress counter. The workers report through the
// state machine, so the bar needs no channel into the pipeline. The bar
// retires itself as soon as the count reaches the total; the batch summary
// dialog prints right after, and must not be overdrawn by a late tick.
type BatchProgress struct {
	bar      *progressbar.ProgressBar
	progress func() scan.Progress
	writer   io.Writer
	stop     chan struct{}
	done     chan struct{}
	finished bool
}

// StartBatchProgress begins polling. Call Stop once the batch returns.
func StartBatchProgress(progress func() scan.Progress, writer io.Writer) *BatchProgress {
	if writer == nil {
		writer = os.Stdout
	}
	b := &BatchProgress{
		progress: progress,
		writer:   writer,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *BatchProgress) run() {
	defer close(b.done)

	ticker := time.NewTicker(150 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			b.render()
			return
		case <-ticker.C:
			b.render()
		}
	}
}

func (b *BatchProgress) render() {
	if b.finished {
		return
	}
	p := b.progress()
	if p.Total == 0 {
		return
	}
	if b.bar == nil {
		b.bar = newBatchBar(p.Total, b.writer)
	}
	if err := b.bar.Set(p.Completed); err != nil {
		slog.Warn("could not update progress bar", "error", err)
	}
	if p.Completed >= p.Total {
		b.finish()
	}
}

func (b *BatchProgress) finish() {
	if b.finished {
		return
	}
	b.finished = true
	if b.bar != nil {
		_ = b.bar.Finish()
		_, _ = fmt.Fprintln(b.writer)
	}
}

// Stop ends polling and finishes the bar.
func (b *BatchProgress) Stop() {
	close(b.stop)
	<-b.done
	b.finish()
}

func newBatchBar(total int, writer io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Analyzing receipts...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
