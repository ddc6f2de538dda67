// mock_storage.go - Mock storage implementation for testing
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/docshelf/backend/internal/models"
	"github.com/docshelf/backend/internal/storage"
)

type mockDoc struct {
	doc  models.HashDoc
	data []byte
	ver  int
}

// MockStorage implements storage.Store in memory for testing
type MockStorage struct {
	mu     sync.RWMutex
	users  map[string]map[string]*mockDoc
	nextID int

	// Err, when set, is returned by every mutating call.
	Err error
}

// NewMockStorage creates a new empty mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{
		users: make(map[string]map[string]*mockDoc),
	}
}

var _ storage.Store = (*MockStorage)(nil)

func (m *MockStorage) docs(uid string) map[string]*mockDoc {
	d, ok := m.users[uid]
	if !ok {
		d = make(map[string]*mockDoc)
		m.users[uid] = d
	}
	return d
}

func (m *MockStorage) checkParent(uid, parent string) error {
	if parent == "" {
		return nil
	}
	p, ok := m.docs(uid)[parent]
	if !ok {
		return fmt.Errorf("parent %s: %w", parent, storage.ErrNotFound)
	}
	if !p.doc.IsFolder() {
		return storage.ErrNotFolder
	}
	return nil
}

func (m *MockStorage) newID() string {
	m.nextID++
	return fmt.Sprintf("doc-%d", m.nextID)
}

func (m *MockStorage) CreateDocument(ctx context.Context, uid, filename, parent string, r io.Reader) (*models.Document, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".pdf" && ext != ".epub" {
		return nil, fmt.Errorf("%w: %q", storage.ErrUnsupportedType, ext)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkParent(uid, parent); err != nil {
		return nil, err
	}
	d := &mockDoc{
		doc: models.HashDoc{
			ID:           m.newID(),
			Name:         strings.TrimSuffix(filename, filepath.Ext(filename)),
			Type:         models.DocumentType,
			Size:         int64(len(data)),
			Extension:    ext,
			Parent:       parent,
			LastModified: time.Now().UTC(),
		},
		data: data,
		ver:  1,
	}
	m.docs(uid)[d.doc.ID] = d
	return m.document(d), nil
}

func (m *MockStorage) CreateFolder(ctx context.Context, uid, name, parent string) (*models.Document, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkParent(uid, parent); err != nil {
		return nil, err
	}
	d := &mockDoc{
		doc: models.HashDoc{
			ID:           m.newID(),
			Name:         strings.TrimSpace(name),
			Type:         models.CollectionType,
			Parent:       parent,
			LastModified: time.Now().UTC(),
		},
		ver: 1,
	}
	m.docs(uid)[d.doc.ID] = d
	return m.document(d), nil
}

func (m *MockStorage) document(d *mockDoc) *models.Document {
	return &models.Document{
		ID:      d.doc.ID,
		Name:    d.doc.Name,
		Type:    d.doc.Type,
		Version: d.ver,
		Parent:  d.doc.Parent,
	}
}

func (m *MockStorage) GetMetadata(uid, id string) (*models.HashDocMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.users[uid][id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &models.HashDocMetadata{
		VisibleName:  d.doc.Name,
		Type:         d.doc.Type,
		Parent:       d.doc.Parent,
		LastModified: d.doc.LastModified.Format(time.RFC3339Nano),
		Version:      d.ver,
	}, nil
}

func (m *MockStorage) Open(ctx context.Context, uid, id string) (io.ReadCloser, *models.HashDoc, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.users[uid][id]
	if !ok {
		return nil, nil, storage.ErrNotFound
	}
	if d.doc.IsFolder() {
		return nil, nil, fmt.Errorf("%s is a folder: %w", id, storage.ErrNotFound)
	}
	doc := d.doc
	return io.NopCloser(bytes.NewReader(d.data)), &doc, nil
}

func (m *MockStorage) List(uid string) ([]*models.HashDoc, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]*models.HashDoc, 0, len(m.users[uid]))
	for _, d := range m.users[uid] {
		doc := d.doc
		list = append(list, &doc)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (m *MockStorage) Rename(uid, id, newName string) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.users[uid][id]
	if !ok {
		return false, storage.ErrNotFound
	}
	newName = strings.TrimSpace(newName)
	if d.doc.Name == newName {
		return false, nil
	}
	d.doc.Name = newName
	d.ver++
	return true, nil
}

func (m *MockStorage) Move(uid, id, newParent string) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.users[uid][id]
	if !ok {
		return false, storage.ErrNotFound
	}
	if err := m.checkParent(uid, newParent); err != nil {
		return false, err
	}
	if newParent == id {
		return false, storage.ErrInvalidMove
	}
	if d.doc.Parent == newParent {
		return false, nil
	}
	d.doc.Parent = newParent
	d.ver++
	return true, nil
}

func (m *MockStorage) Delete(ctx context.Context, uid, id string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	docs := m.users[uid]
	if _, ok := docs[id]; !ok {
		return storage.ErrNotFound
	}
	var remove func(id string)
	remove = func(id string) {
		delete(docs, id)
		for cid, c := range docs {
			if c.doc.Parent == id {
				remove(cid)
			}
		}
	}
	remove(id)
	return nil
}

// Count returns the number of stored records of uid.
func (m *MockStorage) Count(uid string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users[uid])
}
