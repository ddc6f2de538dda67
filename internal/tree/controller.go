// Package tree models a user's document hierarchy and the per-node UI state
// of the document tree: display, editing, and the transient creating form.
package tree

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/docshelf/backend/internal/logging"
	"github.com/docshelf/backend/internal/models"
)

// RemovalDelay is how long the creation form stays after the folder was
// created, while it animates out.
const RemovalDelay = 500 * time.Millisecond

// FolderCreator creates folders on the server.
type FolderCreator interface {
	CreateFolder(ctx context.Context, name, parent string) (*models.HashDoc, error)
}

// DocumentRenamer renames documents on the server.
type DocumentRenamer interface {
	RenameDocument(ctx context.Context, id, name string) error
}

// Notifier shows a user-visible notification.
type Notifier interface {
	Success(msg string)
}

// Callbacks are the optional hooks of a node. They run synchronously.
type Callbacks struct {
	OnClickDoc                func(doc *models.HashDoc)
	OnDocEditingDiscard       func(doc *models.HashDoc)
	OnDocRenamed              func(doc *models.HashDoc)
	OnFolderCreated           func(newDoc *models.HashDoc, index int)
	OnFolderCreationDiscarded func(doc *models.HashDoc, index int)
}

// SubmitKind classifies the outcome of a form submission.
type SubmitKind int

const (
	SubmitSuccess SubmitKind = iota
	SubmitValidationError
	SubmitServerError
)

func (k SubmitKind) String() string {
	switch k {
	case SubmitSuccess:
		return "success"
	case SubmitValidationError:
		return "validation-error"
	case SubmitServerError:
		return "server-error"
	}
	return "unknown"
}

// SubmitResult is the outcome of Submit or Rename.
type SubmitResult struct {
	Kind    SubmitKind
	Doc     *models.HashDoc
	Message string
	Err     error
}

// OK reports whether the submission succeeded.
func (r SubmitResult) OK() bool { return r.Kind == SubmitSuccess }

// ErrEmptyName is the validation error for blank names.
var ErrEmptyName = errors.New("name is required")

// Props are the inputs of a node controller, set by its container.
type Props struct {
	Doc    *models.HashDoc
	Index  int
	Parent string
}

// Deps are the collaborators of a node controller. All are optional.
type Deps struct {
	Creator   FolderCreator
	Renamer   DocumentRenamer
	Notifier  Notifier
	Scheduler Scheduler
}

// View describes what a node renders.
type View struct {
	ID             string
	Name           string
	Type           models.DocType
	Mode           models.Mode
	Clickable      bool
	ShowEditForm   bool
	ShowCreateForm bool
	// FormExiting is set while the creation form animates out.
	FormExiting bool
}

// Controller drives the UI mode of a single tree node.
type Controller struct {
	mu        sync.Mutex
	props     Props
	cb        Callbacks
	deps      Deps
	formShown bool
	edgeSeen  bool
	removal   Timer
	closed    bool
	onRemoved func()
}

// NewController creates a controller for props.
func NewController(props Props, deps Deps, cb Callbacks) *Controller {
	if deps.Scheduler == nil {
		deps.Scheduler = RealScheduler
	}
	c := &Controller{props: props, cb: cb, deps: deps}
	if props.Doc != nil && props.Doc.CurrentMode() == models.ModeCreating {
		c.formShown = true
	}
	return c
}

// Update replaces the props, as the container does after a mode change.
func (c *Controller) Update(props Props) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.props = props
}

// OnFormRemoved registers f to run when the creation form has been torn
// down after its exit delay.
func (c *Controller) OnFormRemoved(f func()) {
	c.mu.Lock()
	c.onRemoved = f
	c.mu.Unlock()
}

// Doc returns the current node.
func (c *Controller) Doc() *models.HashDoc {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.props.Doc
}

// Render computes the view of the node. The first render that observes the
// creating to display edge schedules the removal of the creation form.
func (c *Controller) Render() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc := c.props.Doc
	if doc == nil {
		return View{}
	}
	mode := doc.CurrentMode()

	switch {
	case mode == models.ModeCreating:
		c.formShown = true
		c.edgeSeen = false
	case mode == models.ModeDisplay && doc.PreMode == models.ModeCreating:
		if !c.edgeSeen && c.formShown && !c.closed {
			c.edgeSeen = true
			c.scheduleRemoval()
		}
	}

	return View{
		ID:             doc.ID,
		Name:           doc.Name,
		Type:           doc.Type,
		Mode:           mode,
		Clickable:      mode != models.ModeCreating,
		ShowEditForm:   mode == models.ModeEditing,
		ShowCreateForm: c.formShown,
		FormExiting:    c.formShown && c.removal != nil,
	}
}

// scheduleRemoval arms the removal timer. Callers hold the lock.
func (c *Controller) scheduleRemoval() {
	var t Timer
	t = c.deps.Scheduler.AfterFunc(RemovalDelay, func() {
		c.mu.Lock()
		if c.closed || c.removal != t {
			c.mu.Unlock()
			return
		}
		c.formShown = false
		c.removal = nil
		f := c.onRemoved
		c.mu.Unlock()

		if f != nil {
			f()
		}
	})
	c.removal = t
}

// Close cancels a pending form removal. Render is still allowed but no
// longer schedules anything.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.removal != nil {
		c.removal.Stop()
		c.removal = nil
	}
}

// Click opens the node unless it is in creating mode.
func (c *Controller) Click() {
	c.mu.Lock()
	doc := c.props.Doc
	cb := c.cb.OnClickDoc
	c.mu.Unlock()

	if doc == nil || doc.CurrentMode() == models.ModeCreating {
		return
	}
	if cb != nil {
		cb(doc)
	}
}

// Submit creates a folder named name at the node's position.
func (c *Controller) Submit(ctx context.Context, name string) SubmitResult {
	c.mu.Lock()
	props := c.props
	cb := c.cb.OnFolderCreated
	deps := c.deps
	c.mu.Unlock()

	name = strings.TrimSpace(name)
	if name == "" {
		return SubmitResult{Kind: SubmitValidationError, Message: ErrEmptyName.Error(), Err: ErrEmptyName}
	}
	if deps.Creator == nil {
		err := errors.New("no folder creator configured")
		return SubmitResult{Kind: SubmitServerError, Message: err.Error(), Err: err}
	}

	newDoc, err := deps.Creator.CreateFolder(ctx, name, props.Parent)
	if err != nil {
		logging.Warn("folder creation failed", zap.String("name", name), zap.Error(err))
		return SubmitResult{Kind: SubmitServerError, Message: err.Error(), Err: err}
	}

	newDoc.Children = []*models.HashDoc{}
	if deps.Notifier != nil {
		deps.Notifier.Success("Folder created: " + newDoc.Name)
	}
	if cb != nil {
		cb(newDoc, props.Index)
	}
	return SubmitResult{Kind: SubmitSuccess, Doc: newDoc}
}

// Cancel discards the creation form. The container removes the node.
func (c *Controller) Cancel() {
	c.mu.Lock()
	props := c.props
	cb := c.cb.OnFolderCreationDiscarded
	if c.removal != nil {
		c.removal.Stop()
		c.removal = nil
	}
	c.mu.Unlock()

	if cb != nil {
		cb(props.Doc, props.Index)
	}
}

// Rename renames the node being edited.
func (c *Controller) Rename(ctx context.Context, name string) SubmitResult {
	c.mu.Lock()
	doc := c.props.Doc
	cb := c.cb.OnDocRenamed
	discard := c.cb.OnDocEditingDiscard
	renamer := c.deps.Renamer
	c.mu.Unlock()

	name = strings.TrimSpace(name)
	if name == "" {
		return SubmitResult{Kind: SubmitValidationError, Message: ErrEmptyName.Error(), Err: ErrEmptyName}
	}
	if doc == nil {
		return SubmitResult{Kind: SubmitValidationError, Message: "no document"}
	}
	if name == doc.Name {
		if discard != nil {
			discard(doc)
		}
		return SubmitResult{Kind: SubmitSuccess, Doc: doc}
	}
	if renamer == nil {
		err := errors.New("no renamer configured")
		return SubmitResult{Kind: SubmitServerError, Message: err.Error(), Err: err}
	}

	if err := renamer.RenameDocument(ctx, doc.ID, name); err != nil {
		logging.Warn("rename failed", zap.String("id", doc.ID), zap.Error(err))
		return SubmitResult{Kind: SubmitServerError, Message: err.Error(), Err: err}
	}

	renamed := *doc
	renamed.Name = name
	if cb != nil {
		cb(&renamed)
	}
	return SubmitResult{Kind: SubmitSuccess, Doc: &renamed}
}

// DiscardEdit leaves editing mode without saving.
func (c *Controller) DiscardEdit() {
	c.mu.Lock()
	doc := c.props.Doc
	cb := c.cb.OnDocEditingDiscard
	c.mu.Unlock()

	if cb != nil {
		cb(doc)
	}
}
