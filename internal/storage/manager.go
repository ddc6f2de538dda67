package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docshelf/backend/internal/models"
)

const metadataExt = ".metadata"

var (
	// ErrNotFound is returned for unknown documents, blobs or users.
	ErrNotFound = errors.New("not found")
	// ErrNotFolder is returned when a parent id names a document.
	ErrNotFolder = errors.New("parent is not a folder")
	// ErrUnsupportedType is returned for uploads with a rejected extension.
	ErrUnsupportedType = errors.New("unsupported extension")
	// ErrInvalidMove is returned when a folder would become its own descendant.
	ErrInvalidMove = errors.New("cannot move a folder into itself")
)

// Store defines the interface for per-user document storage.
type Store interface {
	CreateDocument(ctx context.Context, uid, filename, parent string, r io.Reader) (*models.Document, error)
	CreateFolder(ctx context.Context, uid, name, parent string) (*models.Document, error)
	GetMetadata(uid, id string) (*models.HashDocMetadata, error)
	Open(ctx context.Context, uid, id string) (io.ReadCloser, *models.HashDoc, error)
	List(uid string) ([]*models.HashDoc, error)
	Rename(uid, id, newName string) (bool, error)
	Move(uid, id, newParent string) (bool, error)
	Delete(ctx context.Context, uid, id string) error
}

// record is the JSON sidecar persisted next to each document.
type record struct {
	ID        string `json:"id"`
	Extension string `json:"extension,omitempty"`
	Size      int64  `json:"size"`
	models.HashDocMetadata
}

func (r *record) hashDoc() *models.HashDoc {
	modified, _ := time.Parse(time.RFC3339Nano, r.LastModified)
	return &models.HashDoc{
		ID:           r.ID,
		Name:         r.VisibleName,
		Type:         r.Type,
		Size:         r.Size,
		Extension:    r.Extension,
		Parent:       r.Parent,
		LastModified: modified,
	}
}

func (r *record) blobKey(uid string) string {
	return path.Join(uid, r.ID+r.Extension)
}

// LocalStore implements Store with JSON metadata sidecars on the local
// filesystem and content in a BlobStore.
type LocalStore struct {
	mu          sync.RWMutex
	metaDir     string
	blobs       BlobStore
	allowedExts map[string]bool
	users       map[string]map[string]*record
}

// NewLocalStore creates a new LocalStore.
func NewLocalStore(metaDir string, blobs BlobStore, allowedExts []string) (*LocalStore, error) {
	if err := os.MkdirAll(metaDir, 0755); err != nil {
		return nil, fmt.Errorf("creating metadata directory: %w", err)
	}

	exts := make(map[string]bool)
	for _, e := range allowedExts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = true
	}

	return &LocalStore{
		metaDir:     metaDir,
		blobs:       blobs,
		allowedExts: exts,
		users:       make(map[string]map[string]*record),
	}, nil
}

func (s *LocalStore) userDir(uid string) string {
	return filepath.Join(s.metaDir, uid)
}

// loadUser reads the metadata sidecars of uid on first access. Callers hold
// the write lock.
func (s *LocalStore) loadUser(uid string) (map[string]*record, error) {
	if docs, ok := s.users[uid]; ok {
		return docs, nil
	}
	if uid == "" || strings.ContainsAny(uid, `/\`) || uid == "." || uid == ".." {
		return nil, fmt.Errorf("invalid user id: %q", uid)
	}

	dir := s.userDir(uid)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating user directory: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading user directory: %w", err)
	}

	docs := make(map[string]*record)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), metadataExt) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading metadata %s: %w", e.Name(), err)
		}
		var r record
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("parsing metadata %s: %w", e.Name(), err)
		}
		if r.ID == "" {
			r.ID = strings.TrimSuffix(e.Name(), metadataExt)
		}
		if r.Deleted {
			continue
		}
		docs[r.ID] = &r
	}

	s.users[uid] = docs
	return docs, nil
}

func (s *LocalStore) writeRecord(uid string, r *record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	p := filepath.Join(s.userDir(uid), r.ID+metadataExt)
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing metadata: %w", err)
	}
	return nil
}

// checkParent verifies that parent is empty (root) or an existing folder.
func checkParent(docs map[string]*record, parent string) error {
	if parent == "" {
		return nil
	}
	p, ok := docs[parent]
	if !ok {
		return fmt.Errorf("parent %s: %w", parent, ErrNotFound)
	}
	if p.Type != models.CollectionType {
		return ErrNotFolder
	}
	return nil
}

func newRecord(name, parent, ext string, docType models.DocType) *record {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return &record{
		ID:        uuid.New().String(),
		Extension: ext,
		HashDocMetadata: models.HashDocMetadata{
			VisibleName:  name,
			Type:         docType,
			Parent:       parent,
			LastModified: now,
			Version:      1,
		},
	}
}

func (r *record) document() *models.Document {
	return &models.Document{
		ID:      r.ID,
		Name:    r.VisibleName,
		Type:    r.Type,
		Version: r.Version,
		Parent:  r.Parent,
	}
}

// CreateDocument stores an uploaded document. The visible name is the
// filename without its extension.
func (s *LocalStore) CreateDocument(ctx context.Context, uid, filename, parent string, r io.Reader) (*models.Document, error) {
	ext := strings.ToLower(path.Ext(filename))
	if !s.allowedExts[ext] {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	name := strings.TrimSuffix(path.Base(filepath.ToSlash(filename)), path.Ext(filename))

	s.mu.Lock()
	docs, err := s.loadUser(uid)
	if err == nil {
		err = checkParent(docs, parent)
	}
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	rec := newRecord(name, parent, ext, models.DocumentType)

	// Content is written without holding the lock; uploads can be large.
	size, err := s.blobs.Put(ctx, rec.blobKey(uid), r)
	if err != nil {
		return nil, err
	}
	rec.Size = size

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeRecord(uid, rec); err != nil {
		s.blobs.Delete(context.Background(), rec.blobKey(uid))
		return nil, err
	}
	docs[rec.ID] = rec

	return rec.document(), nil
}

// CreateFolder creates a collection under parent.
func (s *LocalStore) CreateFolder(ctx context.Context, uid, name, parent string) (*models.Document, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("folder name required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.loadUser(uid)
	if err != nil {
		return nil, err
	}
	if err := checkParent(docs, parent); err != nil {
		return nil, err
	}

	rec := newRecord(name, parent, "", models.CollectionType)
	if err := s.writeRecord(uid, rec); err != nil {
		return nil, err
	}
	docs[rec.ID] = rec

	return rec.document(), nil
}

func (s *LocalStore) get(uid, id string) (*record, error) {
	docs, err := s.loadUser(uid)
	if err != nil {
		return nil, err
	}
	r, ok := docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return r, nil
}

// GetMetadata returns a copy of the persisted metadata of a document.
func (s *LocalStore) GetMetadata(uid, id string) (*models.HashDocMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.get(uid, id)
	if err != nil {
		return nil, err
	}
	md := r.HashDocMetadata
	return &md, nil
}

// Open returns the content of a document together with its tree entry.
func (s *LocalStore) Open(ctx context.Context, uid, id string) (io.ReadCloser, *models.HashDoc, error) {
	s.mu.Lock()
	r, err := s.get(uid, id)
	var key string
	var doc *models.HashDoc
	if err == nil {
		if r.Type == models.CollectionType {
			err = fmt.Errorf("document %s is a folder", id)
		} else {
			key = r.blobKey(uid)
			doc = r.hashDoc()
		}
	}
	s.mu.Unlock()
	if err != nil {
		return nil, nil, err
	}

	rc, _, err := s.blobs.Get(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	return rc, doc, nil
}

// List returns every document of uid as a flat list sorted by name.
func (s *LocalStore) List(uid string) ([]*models.HashDoc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.loadUser(uid)
	if err != nil {
		return nil, err
	}

	list := make([]*models.HashDoc, 0, len(docs))
	for _, r := range docs {
		list = append(list, r.hashDoc())
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Name != list[j].Name {
			return list[i].Name < list[j].Name
		}
		return list[i].ID < list[j].ID
	})
	return list, nil
}

func (s *LocalStore) touch(uid string, r *record) error {
	r.LastModified = time.Now().UTC().Format(time.RFC3339Nano)
	r.Version++
	r.MetadataModified = true
	return s.writeRecord(uid, r)
}

// Rename changes the visible name. It reports whether anything changed.
func (s *LocalStore) Rename(uid, id, newName string) (bool, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return false, errors.New("name required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.get(uid, id)
	if err != nil {
		return false, err
	}
	if r.VisibleName == newName {
		return false, nil
	}

	prev := *r
	r.VisibleName = newName
	if err := s.touch(uid, r); err != nil {
		*r = prev
		return false, err
	}
	return true, nil
}

// Move reparents a document. An empty newParent moves it to the root.
func (s *LocalStore) Move(uid, id, newParent string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.loadUser(uid)
	if err != nil {
		return false, err
	}
	r, ok := docs[id]
	if !ok {
		return false, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if r.Parent == newParent {
		return false, nil
	}
	if err := checkParent(docs, newParent); err != nil {
		return false, err
	}
	for p := newParent; p != ""; {
		if p == id {
			return false, ErrInvalidMove
		}
		parent, ok := docs[p]
		if !ok {
			break
		}
		p = parent.Parent
	}

	prev := *r
	r.Parent = newParent
	if err := s.touch(uid, r); err != nil {
		*r = prev
		return false, err
	}
	return true, nil
}

// Delete removes a document, or a folder with everything below it.
func (s *LocalStore) Delete(ctx context.Context, uid, id string) error {
	s.mu.Lock()
	docs, err := s.loadUser(uid)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if _, ok := docs[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}

	var removed []*record
	var collect func(id string)
	collect = func(id string) {
		removed = append(removed, docs[id])
		for childID, child := range docs {
			if child.Parent == id {
				collect(childID)
			}
		}
	}
	collect(id)

	for _, r := range removed {
		p := filepath.Join(s.userDir(uid), r.ID+metadataExt)
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			s.mu.Unlock()
			return fmt.Errorf("deleting metadata: %w", err)
		}
		delete(docs, r.ID)
	}
	s.mu.Unlock()

	var errs []error
	for _, r := range removed {
		if r.Type == models.CollectionType {
			continue
		}
		if err := s.blobs.Delete(ctx, r.blobKey(uid)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
