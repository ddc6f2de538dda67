package upload

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/docshelf/backend/internal/logging"
	"github.com/docshelf/backend/internal/models"
)

var (
	// ErrUnknownUpload is returned for ids that were never added.
	ErrUnknownUpload = errors.New("unknown upload")
	// ErrDuplicateUpload is returned when adding an id twice.
	ErrDuplicateUpload = errors.New("upload already queued")
	// ErrAlreadyStarted is returned when starting an upload twice.
	ErrAlreadyStarted = errors.New("upload already started")
)

// Entry is the manager's view of one upload.
type Entry struct {
	State      FileState         `json:"state"`
	Documents  []models.Document `json:"documents,omitempty"`
	Error      string            `json:"error,omitempty"`
	AddedAt    time.Time         `json:"addedAt"`
	FinishedAt *time.Time        `json:"finishedAt,omitempty"`
}

// Finished reports whether the upload has ended, successfully or not.
func (e Entry) Finished() bool { return e.FinishedAt != nil }

type entry struct {
	Entry
	file     *UploadableFile
	transfer *Transfer
	recorded chan struct{}
}

// Manager tracks a queue of uploads sent through a Sender.
type Manager struct {
	entries map[string]*entry
	mu      sync.RWMutex
	sender  Sender
	timeout time.Duration
}

// NewManager creates a new upload manager.
func NewManager(sender Sender, timeout time.Duration) *Manager {
	return &Manager{
		entries: make(map[string]*entry),
		sender:  sender,
		timeout: timeout,
	}
}

// Add queues f. The upload starts with Start.
func (m *Manager) Add(f *UploadableFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[f.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateUpload, f.ID)
	}
	if f.Handle == nil {
		f.Handle = NewAbortHandle(context.Background())
	}
	m.entries[f.ID] = &entry{
		Entry: Entry{State: f.State(), AddedAt: time.Now()},
		file:  f,
	}
	return nil
}

// Start begins the upload of a queued file. onChange receives every state
// change and may be nil.
func (m *Manager) Start(id string, onChange func(FileState)) (*Transfer, error) {
	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownUpload, id)
	}
	if e.transfer != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyStarted, id)
	}

	observe := func(s FileState) {
		m.mu.Lock()
		e.State = s
		m.mu.Unlock()
		if onChange != nil {
			onChange(s)
		}
	}
	t := Start(m.sender, e.file, m.timeout, observe)
	e.transfer = t
	e.recorded = make(chan struct{})
	m.mu.Unlock()

	logging.Debug("upload started", zap.String("id", id), zap.String("name", e.file.Name))
	go m.finish(id, e, t)

	return t, nil
}

// finish records the outcome of a transfer. The status is left as the
// tracker last reported it.
func (m *Manager) finish(id string, e *entry, t *Transfer) {
	docs, err := t.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	defer close(e.recorded)

	now := time.Now()
	e.FinishedAt = &now
	e.State = t.State()
	e.Documents = docs
	if err != nil {
		e.Error = err.Error()
		logging.Warn("upload failed",
			zap.String("id", id),
			zap.String("status", string(e.State.Status)),
			zap.Error(err))
		return
	}
	logging.Info("upload complete",
		zap.String("id", id),
		zap.Int64("bytes", e.State.UploadedSize),
		zap.Int("documents", len(docs)))
}

// Get returns the entry for id.
func (m *Manager) Get(id string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[id]
	if !ok {
		return Entry{}, false
	}
	return e.Entry, true
}

// List returns all entries in the order they were added.
func (m *Manager) List() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		list = append(list, e.Entry)
	}
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].AddedAt.Equal(list[j].AddedAt) {
			return list[i].AddedAt.Before(list[j].AddedAt)
		}
		return list[i].State.ID < list[j].State.ID
	})
	return list
}

// Abort cancels the upload of id through its file's handle. Queued uploads
// are aborted before they start.
func (m *Manager) Abort(id string) error {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownUpload, id)
	}
	if e.file.Handle != nil {
		e.file.Handle.Abort()
	}
	return nil
}

// Wait blocks until every started upload has finished and its outcome has
// been recorded.
func (m *Manager) Wait() {
	m.mu.RLock()
	pending := make([]chan struct{}, 0, len(m.entries))
	for _, e := range m.entries {
		if e.recorded != nil {
			pending = append(pending, e.recorded)
		}
	}
	m.mu.RUnlock()

	for _, ch := range pending {
		<-ch
	}
}

// CleanupFinished removes entries that finished more than maxAge ago.
func (m *Manager) CleanupFinished(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, e := range m.entries {
		if e.FinishedAt != nil && e.FinishedAt.Before(cutoff) {
			delete(m.entries, id)
			removed++
		}
	}
	return removed
}
