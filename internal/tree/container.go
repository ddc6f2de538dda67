package tree

import (
	"sync"

	"github.com/docshelf/backend/internal/models"
)

// Container holds the children of one folder and applies the mode changes
// its nodes ask for.
type Container struct {
	mu     sync.Mutex
	parent string
	docs   []*models.HashDoc
	// OnClickDoc is forwarded to every node.
	OnClickDoc func(doc *models.HashDoc)
}

// NewContainer creates a container for the children of parent.
func NewContainer(parent string, docs []*models.HashDoc) *Container {
	cp := make([]*models.HashDoc, len(docs))
	copy(cp, docs)
	return &Container{parent: parent, docs: cp}
}

// Parent returns the folder id of the container.
func (c *Container) Parent() string { return c.parent }

// Docs returns the current nodes.
func (c *Container) Docs() []*models.HashDoc {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]*models.HashDoc, len(c.docs))
	copy(cp, c.docs)
	return cp
}

// Props returns the props of the node at index.
func (c *Container) Props(index int) Props {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.docs) {
		return Props{Index: index, Parent: c.parent}
	}
	return Props{Doc: c.docs[index], Index: index, Parent: c.parent}
}

// BeginCreate inserts a folder placeholder in creating mode at index.
func (c *Container) BeginCreate(index int) *models.HashDoc {
	c.mu.Lock()
	defer c.mu.Unlock()

	if index < 0 {
		index = 0
	}
	if index > len(c.docs) {
		index = len(c.docs)
	}
	doc := &models.HashDoc{
		Type:   models.CollectionType,
		Parent: c.parent,
		Mode:   models.ModeCreating,
	}
	c.docs = append(c.docs, nil)
	copy(c.docs[index+1:], c.docs[index:])
	c.docs[index] = doc
	return doc
}

// BeginEdit switches the node at index to editing mode.
func (c *Container) BeginEdit(index int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.docs) {
		return false
	}
	updated := *c.docs[index]
	updated.SetMode(models.ModeEditing)
	c.docs[index] = &updated
	return true
}

func (c *Container) replace(index int, doc *models.HashDoc, preMode models.Mode) {
	updated := *doc
	updated.Mode = models.ModeDisplay
	updated.PreMode = preMode
	if index >= 0 && index < len(c.docs) {
		c.docs[index] = &updated
	}
}

// OnFolderCreated replaces the placeholder at index with the created folder.
func (c *Container) OnFolderCreated(newDoc *models.HashDoc, index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replace(index, newDoc, models.ModeCreating)
}

// OnFolderCreationDiscarded removes the placeholder at index.
func (c *Container) OnFolderCreationDiscarded(doc *models.HashDoc, index int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if index < 0 || index >= len(c.docs) || c.docs[index] != doc {
		// The list changed; fall back to identity.
		index = -1
		for i, d := range c.docs {
			if d == doc {
				index = i
				break
			}
		}
		if index < 0 {
			return
		}
	}
	c.docs = append(c.docs[:index], c.docs[index+1:]...)
}

func (c *Container) indexOf(id string) int {
	for i, d := range c.docs {
		if d.ID == id {
			return i
		}
	}
	return -1
}

// OnDocEditingDiscard returns the edited node to display mode.
func (c *Container) OnDocEditingDiscard(doc *models.HashDoc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexOf(doc.ID); i >= 0 {
		c.replace(i, c.docs[i], models.ModeEditing)
	}
}

// OnDocRenamed stores the renamed node in display mode.
func (c *Container) OnDocRenamed(doc *models.HashDoc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexOf(doc.ID); i >= 0 {
		c.replace(i, doc, models.ModeEditing)
	}
}

// Callbacks returns the hooks that route node events to the container.
func (c *Container) Callbacks() Callbacks {
	return Callbacks{
		OnClickDoc:                c.OnClickDoc,
		OnDocEditingDiscard:       c.OnDocEditingDiscard,
		OnDocRenamed:              c.OnDocRenamed,
		OnFolderCreated:           c.OnFolderCreated,
		OnFolderCreationDiscarded: c.OnFolderCreationDiscarded,
	}
}
