package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/docshelf/backend/internal/models"
)

var (
	// ErrUserNotFound is returned for unknown user ids.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned when registering a taken id.
	ErrUserExists = errors.New("user already exists")
)

// UserStore defines the interface for account storage.
type UserStore interface {
	GetUser(id string) (*models.Account, error)
	GetUsers() ([]*models.Account, error)
	RegisterUser(a *models.Account) error
	UpdateUser(a *models.Account) error
	RemoveUser(id string) error
}

type usersFile struct {
	Users []*models.Account `yaml:"users"`
}

// YAMLUserStore keeps accounts in a single YAML file.
type YAMLUserStore struct {
	mu    sync.RWMutex
	path  string
	users map[string]*models.Account
}

// NewYAMLUserStore loads the users file at path. A missing file is an empty
// store.
func NewYAMLUserStore(path string) (*YAMLUserStore, error) {
	s := &YAMLUserStore{
		path:  path,
		users: make(map[string]*models.Account),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading users file: %w", err)
	}

	var f usersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing users file: %w", err)
	}
	for _, u := range f.Users {
		if u == nil || u.ID == "" {
			continue
		}
		s.users[u.ID] = u
	}
	return s, nil
}

// save writes the whole file. Callers hold the write lock.
func (s *YAMLUserStore) save() error {
	f := usersFile{Users: s.sorted()}
	data, err := yaml.Marshal(&f)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing users file: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func (s *YAMLUserStore) sorted() []*models.Account {
	list := make([]*models.Account, 0, len(s.users))
	for _, u := range s.users {
		list = append(list, u)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// GetUser returns a copy of the account with the given id.
func (s *YAMLUserStore) GetUser(id string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// GetUsers returns copies of all accounts ordered by id.
func (s *YAMLUserStore) GetUsers() ([]*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.sorted()
	out := make([]*models.Account, len(list))
	for i, u := range list {
		cp := *u
		out[i] = &cp
	}
	return out, nil
}

// RegisterUser adds a new account.
func (s *YAMLUserStore) RegisterUser(a *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[a.ID]; ok {
		return ErrUserExists
	}
	cp := *a
	s.users[a.ID] = &cp
	if err := s.save(); err != nil {
		delete(s.users, a.ID)
		return err
	}
	return nil
}

// UpdateUser replaces an existing account.
func (s *YAMLUserStore) UpdateUser(a *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.users[a.ID]
	if !ok {
		return ErrUserNotFound
	}
	cp := *a
	s.users[a.ID] = &cp
	if err := s.save(); err != nil {
		s.users[a.ID] = prev
		return err
	}
	return nil
}

// RemoveUser deletes an account.
func (s *YAMLUserStore) RemoveUser(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	delete(s.users, id)
	if err := s.save(); err != nil {
		s.users[id] = prev
		return err
	}
	return nil
}

// Count returns the number of accounts.
func (s *YAMLUserStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}
