package tree

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docshelf/backend/internal/models"
)

type fakeTimer struct {
	s       *fakeScheduler
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	wasActive := !t.stopped && !t.fired
	t.stopped = true
	return wasActive
}

type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
	delays []time.Duration
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{s: s, f: f}
	s.timers = append(s.timers, t)
	s.delays = append(s.delays, d)
	return t
}

// fire runs every pending timer.
func (s *fakeScheduler) fire() {
	s.mu.Lock()
	var due []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			due = append(due, t)
		}
	}
	s.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

type fakeCreator struct {
	calls int
	err   error
}

func (f *fakeCreator) CreateFolder(ctx context.Context, name, parent string) (*models.HashDoc, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &models.HashDoc{ID: "new-" + name, Name: name, Type: models.CollectionType, Parent: parent}, nil
}

type fakeRenamer struct {
	ids   []string
	names []string
	err   error
}

func (f *fakeRenamer) RenameDocument(ctx context.Context, id, name string) error {
	f.ids = append(f.ids, id)
	f.names = append(f.names, name)
	return f.err
}

type fakeNotifier struct{ msgs []string }

func (f *fakeNotifier) Success(msg string) { f.msgs = append(f.msgs, msg) }

func TestController_CreateFolderFlow(t *testing.T) {
	sched := &fakeScheduler{}
	creator := &fakeCreator{}
	notifier := &fakeNotifier{}

	container := NewContainer("parent-1", []*models.HashDoc{
		{ID: "a", Name: "A", Type: models.DocumentType},
	})
	placeholder := container.BeginCreate(0)
	require.Equal(t, models.ModeCreating, placeholder.Mode)
	assert.Empty(t, placeholder.PreMode)

	ctrl := NewController(container.Props(0), Deps{Creator: creator, Notifier: notifier, Scheduler: sched}, container.Callbacks())

	view := ctrl.Render()
	assert.True(t, view.ShowCreateForm)
	assert.False(t, view.Clickable)
	assert.Empty(t, sched.timers)

	res := ctrl.Submit(context.Background(), "  Papers ")
	require.Equal(t, SubmitSuccess, res.Kind)
	assert.Equal(t, "Papers", res.Doc.Name)
	assert.NotNil(t, res.Doc.Children)
	assert.Len(t, res.Doc.Children, 0)
	assert.Equal(t, 1, creator.calls)
	assert.Len(t, notifier.msgs, 1)

	docs := container.Docs()
	require.Len(t, docs, 2)
	assert.Equal(t, "new-Papers", docs[0].ID)
	assert.Equal(t, models.ModeDisplay, docs[0].Mode)
	assert.Equal(t, models.ModeCreating, docs[0].PreMode)

	ctrl.Update(container.Props(0))
	view = ctrl.Render()
	assert.True(t, view.ShowCreateForm)
	assert.True(t, view.FormExiting)
	require.Len(t, sched.timers, 1)
	assert.Equal(t, RemovalDelay, sched.delays[0])

	// Further renders do not reschedule.
	ctrl.Render()
	ctrl.Render()
	assert.Len(t, sched.timers, 1)

	removed := 0
	ctrl.OnFormRemoved(func() { removed++ })
	sched.fire()
	assert.Equal(t, 1, removed)

	view = ctrl.Render()
	assert.False(t, view.ShowCreateForm)
	assert.False(t, view.FormExiting)
	assert.True(t, view.Clickable)
	assert.Len(t, sched.timers, 1)
}

func TestController_SubmitEmptyName(t *testing.T) {
	creator := &fakeCreator{}
	container := NewContainer("", nil)
	container.BeginCreate(0)
	ctrl := NewController(container.Props(0), Deps{Creator: creator, Scheduler: &fakeScheduler{}}, container.Callbacks())

	for _, name := range []string{"", "   ", "\t\n"} {
		res := ctrl.Submit(context.Background(), name)
		assert.Equal(t, SubmitValidationError, res.Kind)
		assert.ErrorIs(t, res.Err, ErrEmptyName)
	}
	assert.Equal(t, 0, creator.calls)
	assert.Len(t, container.Docs(), 1)
}

func TestController_SubmitServerError(t *testing.T) {
	creator := &fakeCreator{err: errors.New("http 500")}
	notifier := &fakeNotifier{}
	container := NewContainer("", nil)
	container.BeginCreate(0)
	ctrl := NewController(container.Props(0), Deps{Creator: creator, Notifier: notifier, Scheduler: &fakeScheduler{}}, container.Callbacks())

	res := ctrl.Submit(context.Background(), "X")
	assert.Equal(t, SubmitServerError, res.Kind)
	assert.False(t, res.OK())
	assert.Empty(t, notifier.msgs)

	docs := container.Docs()
	require.Len(t, docs, 1)
	assert.Equal(t, models.ModeCreating, docs[0].Mode)
}

func TestController_CloseCancelsRemoval(t *testing.T) {
	sched := &fakeScheduler{}
	container := NewContainer("", nil)
	container.BeginCreate(0)
	ctrl := NewController(container.Props(0), Deps{Creator: &fakeCreator{}, Scheduler: sched}, container.Callbacks())

	require.True(t, ctrl.Submit(context.Background(), "X").OK())
	ctrl.Update(container.Props(0))
	ctrl.Render()
	require.Len(t, sched.timers, 1)

	removed := false
	ctrl.OnFormRemoved(func() { removed = true })
	ctrl.Close()
	assert.True(t, sched.timers[0].stopped)

	sched.fire()
	assert.False(t, removed)

	ctrl.Render()
	assert.Len(t, sched.timers, 1)
}

func TestController_CancelStopsPendingRemoval(t *testing.T) {
	sched := &fakeScheduler{}
	container := NewContainer("", nil)
	container.BeginCreate(0)
	ctrl := NewController(container.Props(0), Deps{Creator: &fakeCreator{}, Scheduler: sched}, container.Callbacks())

	require.True(t, ctrl.Submit(context.Background(), "X").OK())
	ctrl.Update(container.Props(0))
	ctrl.Render()
	require.Len(t, sched.timers, 1)

	removed := false
	ctrl.OnFormRemoved(func() { removed = true })
	ctrl.Cancel()
	assert.True(t, sched.timers[0].stopped)

	sched.fire()
	assert.False(t, removed)
}

func TestController_CancelDelegatesRemoval(t *testing.T) {
	container := NewContainer("", []*models.HashDoc{{ID: "a", Name: "A"}})
	placeholder := container.BeginCreate(1)

	var gotDoc *models.HashDoc
	gotIndex := -1
	cb := container.Callbacks()
	discard := cb.OnFolderCreationDiscarded
	cb.OnFolderCreationDiscarded = func(doc *models.HashDoc, index int) {
		gotDoc, gotIndex = doc, index
		discard(doc, index)
	}

	ctrl := NewController(container.Props(1), Deps{Scheduler: &fakeScheduler{}}, cb)
	ctrl.Cancel()

	assert.Same(t, placeholder, gotDoc)
	assert.Equal(t, 1, gotIndex)
	docs := container.Docs()
	require.Len(t, docs, 1)
	assert.Equal(t, "a", docs[0].ID)
}

func TestController_ClickSuppressedWhileCreating(t *testing.T) {
	clicks := 0
	container := NewContainer("", []*models.HashDoc{{ID: "a", Name: "A"}})
	container.OnClickDoc = func(doc *models.HashDoc) { clicks++ }
	container.BeginCreate(0)

	creating := NewController(container.Props(0), Deps{Scheduler: &fakeScheduler{}}, container.Callbacks())
	creating.Click()
	assert.Equal(t, 0, clicks)

	display := NewController(container.Props(1), Deps{Scheduler: &fakeScheduler{}}, container.Callbacks())
	display.Click()
	assert.Equal(t, 1, clicks)
}

func TestController_Editing(t *testing.T) {
	renamer := &fakeRenamer{}
	container := NewContainer("", []*models.HashDoc{{ID: "a", Name: "A", Type: models.DocumentType}})
	require.True(t, container.BeginEdit(0))

	ctrl := NewController(container.Props(0), Deps{Renamer: renamer, Scheduler: &fakeScheduler{}}, container.Callbacks())
	view := ctrl.Render()
	assert.True(t, view.ShowEditForm)
	assert.Equal(t, models.ModeEditing, view.Mode)

	res := ctrl.Rename(context.Background(), " ")
	assert.Equal(t, SubmitValidationError, res.Kind)
	assert.Empty(t, renamer.ids)

	res = ctrl.Rename(context.Background(), "Alpha")
	require.True(t, res.OK())
	assert.Equal(t, []string{"a"}, renamer.ids)

	docs := container.Docs()
	assert.Equal(t, "Alpha", docs[0].Name)
	assert.Equal(t, models.ModeDisplay, docs[0].Mode)
	assert.Equal(t, models.ModeEditing, docs[0].PreMode)

	require.True(t, container.BeginEdit(0))
	ctrl.Update(container.Props(0))
	ctrl.DiscardEdit()
	assert.Equal(t, models.ModeDisplay, container.Docs()[0].Mode)
}

func TestController_RenameServerError(t *testing.T) {
	renamer := &fakeRenamer{err: errors.New("conflict")}
	container := NewContainer("", []*models.HashDoc{{ID: "a", Name: "A"}})
	container.BeginEdit(0)

	ctrl := NewController(container.Props(0), Deps{Renamer: renamer, Scheduler: &fakeScheduler{}}, container.Callbacks())
	res := ctrl.Rename(context.Background(), "B")
	assert.Equal(t, SubmitServerError, res.Kind)
	assert.Equal(t, models.ModeEditing, container.Docs()[0].Mode)
}

func TestModeInvariant(t *testing.T) {
	for _, s := range []string{"", "display", "editing", "creating"} {
		m, err := models.ParseMode(s)
		require.NoError(t, err)
		assert.True(t, m.Valid())
	}
	_, err := models.ParseMode("deleting")
	assert.Error(t, err)
}

func TestRealScheduler(t *testing.T) {
	done := make(chan struct{})
	RealScheduler.AfterFunc(time.Millisecond, func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}
