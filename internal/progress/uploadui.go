// Package progress renders upload progress on the terminal.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"

	"github.com/docshelf/backend/internal/upload"
)

// UploadUI manages concurrent upload progress bars using mpb
type UploadUI struct {
	progress   *mpb.Progress
	out        io.Writer
	isTerminal bool
	totalFiles int
	started    int32
	completed  int32
	mu         sync.Mutex
}

// FileBar is the progress bar of a single file
type FileBar struct {
	bar       *mpb.Bar
	ui        *UploadUI
	index     int
	name      string
	size      int64
	startTime time.Time

	mu       sync.Mutex
	lastSeen time.Time
	done     bool
}

// NewUploadUI creates a UI for totalFiles uploads on stderr. Bars are only
// drawn when stderr is a terminal; otherwise plain lines are printed.
func NewUploadUI(totalFiles int) *UploadUI {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))
	return newUploadUI(totalFiles, os.Stderr, isTerminal)
}

func newUploadUI(totalFiles int, out io.Writer, isTerminal bool) *UploadUI {
	var p *mpb.Progress
	if isTerminal {
		p = mpb.New(
			mpb.WithOutput(out),
			mpb.WithRefreshRate(200*time.Millisecond),
			mpb.WithWidth(80),
		)
	} else {
		p = mpb.New(mpb.WithOutput(io.Discard))
	}
	return &UploadUI{
		progress:   p,
		out:        out,
		isTerminal: isTerminal,
		totalFiles: totalFiles,
	}
}

// AddFileBar creates a progress bar for a file of size bytes
func (u *UploadUI) AddFileBar(name string, size int64) *FileBar {
	index := int(atomic.AddInt32(&u.started, 1))
	now := time.Now()
	fb := &FileBar{
		ui:        u,
		index:     index,
		name:      name,
		size:      size,
		startTime: now,
		lastSeen:  now,
	}

	if u.isTerminal {
		fb.bar = u.progress.New(size,
			mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
			mpb.PrependDecorators(
				decor.Name(fmt.Sprintf("[%d/%d] %s", index, u.totalFiles, name), decor.WCSyncSpaceR),
			),
			mpb.AppendDecorators(
				decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
				decor.Name("  "),
				decor.Percentage(decor.WCSyncSpace),
				decor.Name("  "),
				decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 30, decor.WCSyncSpace),
			),
			mpb.BarRemoveOnComplete(),
		)
	} else {
		u.printf("Uploading [%d/%d]: %s (%.1f MiB)\n", index, u.totalFiles, name, float64(size)/(1024*1024))
	}
	return fb
}

// Observe moves the bar to the uploaded size of state. It is safe to pass
// as the change callback of an upload.
func (f *FileBar) Observe(state upload.FileState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bar == nil || f.done {
		return
	}
	now := time.Now()
	delta := state.UploadedSize - f.bar.Current()
	if delta > 0 {
		f.bar.EwmaIncrInt64(delta, now.Sub(f.lastSeen))
	} else if delta < 0 {
		f.bar.SetCurrent(state.UploadedSize)
	}
	f.lastSeen = now
}

// Complete finishes the bar and prints a summary line.
func (f *FileBar) Complete(docs []string, err error) {
	f.mu.Lock()
	if f.done {
		f.mu.Unlock()
		return
	}
	f.done = true
	if f.bar != nil {
		if err == nil {
			f.bar.SetTotal(f.size, true)
		} else {
			f.bar.Abort(false)
		}
	}
	f.mu.Unlock()

	elapsed := time.Since(f.startTime)
	if err == nil {
		f.ui.printf("✓ %s (%.1f MiB, %s) %v\n", f.name, float64(f.size)/(1024*1024), elapsed.Round(time.Millisecond), docs)
	} else {
		f.ui.printf("✗ %s: %v\n", f.name, err)
	}
	atomic.AddInt32(&f.ui.completed, 1)
}

// Completed returns the number of finished bars.
func (u *UploadUI) Completed() int {
	return int(atomic.LoadInt32(&u.completed))
}

// Wait blocks until all progress bars complete
func (u *UploadUI) Wait() {
	u.progress.Wait()
}

// Writer returns an io.Writer that prints above the progress bars
func (u *UploadUI) Writer() io.Writer {
	if u.isTerminal {
		return u.progress
	}
	return u.out
}

// IsTerminal reports whether bars are drawn
func (u *UploadUI) IsTerminal() bool {
	return u.isTerminal
}

func (u *UploadUI) printf(format string, args ...interface{}) {
	u.mu.Lock()
	defer u.mu.Unlock()
	fmt.Fprintf(u.Writer(), format, args...)
}
