package upload

import (
	"context"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/docshelf/backend/internal/models"
)

// Status represents the client-side status of a file upload.
type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusUploaded  Status = "uploaded"
)

// DefaultTimeout bounds a single upload request.
const DefaultTimeout = 5 * time.Minute

// AbortHandle is the cancellation handle owned by an UploadableFile.
type AbortHandle struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewAbortHandle creates a handle whose context is derived from parent.
func NewAbortHandle(parent context.Context) *AbortHandle {
	ctx, cancel := context.WithCancel(parent)
	return &AbortHandle{ctx: ctx, cancel: cancel}
}

// Context returns the context cancelled by Abort.
func (h *AbortHandle) Context() context.Context { return h.ctx }

// Abort cancels every transfer using this handle. It is safe to call more
// than once.
func (h *AbortHandle) Abort() { h.cancel() }

// Aborted reports whether Abort has been called or the parent is done.
func (h *AbortHandle) Aborted() bool { return h.ctx.Err() != nil }

// UploadableFile is a file queued for upload by its owner.
type UploadableFile struct {
	ID      string
	Name    string
	Size    int64
	Content io.Reader
	Parent  string
	Handle  *AbortHandle
}

// NewUploadableFile wraps content for upload. The file gets its own
// AbortHandle derived from ctx.
func NewUploadableFile(ctx context.Context, id, name string, size int64, content io.Reader) *UploadableFile {
	return &UploadableFile{
		ID:      id,
		Name:    name,
		Size:    size,
		Content: content,
		Handle:  NewAbortHandle(ctx),
	}
}

// NumericID formats a numeric file identifier.
func NumericID(n int64) string { return strconv.FormatInt(n, 10) }

// State returns the initial snapshot of f.
func (f *UploadableFile) State() FileState {
	return FileState{
		ID:     f.ID,
		Name:   f.Name,
		Size:   f.Size,
		Status: StatusPending,
	}
}

// FileState is an immutable snapshot of an upload's progress.
type FileState struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	UploadedSize int64  `json:"uploadedSize"`
	Status       Status `json:"status"`
}

// Progress is a transport progress event.
type Progress struct {
	Loaded int64
	Total  int64
}

// Effect tells the caller what to do after a transition.
type Effect struct {
	// Notify is set when observers should receive the new state.
	Notify bool
	// Completed is set on the single transition into StatusUploaded.
	Completed bool
}

// Advance applies a progress event to state.
func Advance(state FileState, ev Progress) (FileState, Effect) {
	next := state
	if next.Status == StatusPending {
		next.Status = StatusUploading
	}
	next.UploadedSize = ev.Loaded

	eff := Effect{Notify: true}
	if ev.Loaded == ev.Total && next.Status != StatusUploaded {
		next.Status = StatusUploaded
		eff.Completed = true
	}
	return next, eff
}

// Tracker holds the latest state of one upload and feeds progress events
// through Advance.
type Tracker struct {
	mu       sync.Mutex
	state    FileState
	onChange func(FileState)
}

// NewTracker creates a tracker starting at initial. onChange may be nil.
func NewTracker(initial FileState, onChange func(FileState)) *Tracker {
	return &Tracker{state: initial, onChange: onChange}
}

// Observe applies ev and invokes the change callback with the new snapshot.
// Events must be delivered from a single goroutine to keep their order.
func (t *Tracker) Observe(ev Progress) Effect {
	t.mu.Lock()
	next, eff := Advance(t.state, ev)
	t.state = next
	t.mu.Unlock()

	if eff.Notify && t.onChange != nil {
		t.onChange(next)
	}
	return eff
}

// State returns the latest snapshot.
func (t *Tracker) State() FileState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Sender performs the transfer of a file and reports progress through
// report, in transport order.
type Sender interface {
	Send(ctx context.Context, f *UploadableFile, report func(Progress)) ([]models.Document, error)
}

// Transfer is a running upload.
type Transfer struct {
	tracker *Tracker
	handle  *AbortHandle
	done    chan struct{}
	docs    []models.Document
	err     error
}

// Start uploads f through s in a new goroutine. The request is bounded by
// timeout and is cancelled through the file's AbortHandle.
func Start(s Sender, f *UploadableFile, timeout time.Duration, onChange func(FileState)) *Transfer {
	if f.Handle == nil {
		f.Handle = NewAbortHandle(context.Background())
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	t := &Transfer{
		tracker: NewTracker(f.State(), onChange),
		handle:  f.Handle,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(t.done)
		ctx, cancel := context.WithTimeout(f.Handle.Context(), timeout)
		defer cancel()

		t.docs, t.err = s.Send(ctx, f, func(p Progress) { t.tracker.Observe(p) })
	}()

	return t
}

// Wait blocks until the transfer finishes and returns the created documents.
func (t *Transfer) Wait() ([]models.Document, error) {
	<-t.done
	return t.docs, t.err
}

// Done is closed when the transfer has finished.
func (t *Transfer) Done() <-chan struct{} { return t.done }

// Abort cancels the transfer through the file's handle.
func (t *Transfer) Abort() { t.handle.Abort() }

// State returns the latest snapshot of the upload.
func (t *Transfer) State() FileState { return t.tracker.State() }
