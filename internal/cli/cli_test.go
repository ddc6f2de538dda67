package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docshelf/backend/internal/api"
	"github.com/docshelf/backend/internal/auth"
	"github.com/docshelf/backend/internal/events"
	"github.com/docshelf/backend/internal/models"
	"github.com/docshelf/backend/internal/session"
	"github.com/docshelf/backend/internal/storage"
	"github.com/docshelf/backend/internal/testutil"
)

type cliEnv struct {
	url   string
	creds string
	store *testutil.MockStorage
	user  *models.Account
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()

	users, err := storage.NewYAMLUserStore(filepath.Join(dir, "users.yaml"))
	require.NoError(t, err)
	account, err := models.NewAccount("reader@example.com", "correct-horse")
	require.NoError(t, err)
	require.NoError(t, users.RegisterUser(account))

	sessions := session.NewManager()
	store := testutil.NewMockStorage()
	deps := &api.Dependencies{
		Store:         store,
		Users:         users,
		Sessions:      sessions,
		Auth:          auth.New("cli-secret", time.Hour, sessions),
		Events:        events.NewBroadcaster(),
		AllowDeletion: true,
		Version:       "test",
		Backend:       "memory",
	}

	e := echo.New()
	e.HTTPErrorHandler = api.ErrorHandler
	api.RegisterRoutes(e, api.NewHandlers(deps), deps)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	return &cliEnv{
		url:   srv.URL,
		creds: filepath.Join(dir, "config", "credentials.yaml"),
		store: store,
		user:  account,
	}
}

func (env *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--server", env.url, "--credentials", env.creds}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (env *cliEnv) login(t *testing.T) {
	t.Helper()
	out, err := env.run(t, "login", "--email", "reader@example.com", "--password", "correct-horse")
	require.NoError(t, err, out)
}

func TestLogin_SavesToken(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "login", "--email", "reader@example.com", "--password", "correct-horse")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as reader@example.com")

	creds, err := LoadCredentials(env.creds)
	require.NoError(t, err)
	assert.Equal(t, env.url, creds.Server)
	assert.NotEmpty(t, creds.Token)

	info, err := os.Stat(env.creds)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	out, err = env.run(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "reader@example.com")
	assert.Contains(t, out, env.user.ID)
}

func TestLogin_WrongPassword(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "login", "--email", "reader@example.com", "--password", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to sign in")

	creds, err := LoadCredentials(env.creds)
	require.NoError(t, err)
	assert.Empty(t, creds.Token)
}

func TestLogin_PasswordFromStdin(t *testing.T) {
	env := newCLIEnv(t)

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(bytes.NewBufferString("correct-horse\n"))
	cmd.SetArgs([]string{"--server", env.url, "--credentials", env.creds, "login", "--email", "reader@example.com"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "Signed in")
}

func TestCommands_RequireLogin(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "ls")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not signed in")
}

func TestLogout_RevokesSession(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)
	stale, err := LoadCredentials(env.creds)
	require.NoError(t, err)

	out, err := env.run(t, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out")

	creds, err := LoadCredentials(env.creds)
	require.NoError(t, err)
	assert.Empty(t, creds.Token)

	// The old token no longer works.
	require.NoError(t, stale.Save())
	_, err = env.run(t, "ls")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestMkdirAndList(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)

	out, err := env.run(t, "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "(empty)")

	out, err = env.run(t, "mkdir", "Papers")
	require.NoError(t, err)
	assert.Contains(t, out, "Folder created: Papers")
	assert.Contains(t, out, "ID: doc-1")

	out, err = env.run(t, "mkdir", "2024", "--parent", "doc-1")
	require.NoError(t, err)
	assert.Contains(t, out, "ID: doc-2")

	out, err = env.run(t, "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "Papers/  [doc-1]")
	assert.Contains(t, out, "  2024/  [doc-2]")

	out, err = env.run(t, "ls", "--folder", "doc-1")
	require.NoError(t, err)
	assert.Contains(t, out, "2024/")
	assert.NotContains(t, out, "Papers")
}

func TestMkdir_Errors(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)

	_, err := env.run(t, "mkdir", "   ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid name")

	_, err = env.run(t, "mkdir", "Sub", "--parent", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	assert.Equal(t, 0, env.store.Count(env.user.ID))
}

func TestDocumentLifecycle(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)

	_, err := env.run(t, "mkdir", "Papers")
	require.NoError(t, err)

	dir := t.TempDir()
	pdf := filepath.Join(dir, "attention.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4 hello"), 0644))

	_, err = env.run(t, "upload", pdf, "--parent", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, env.store.Count(env.user.ID))

	out, err := env.run(t, "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "  attention  [doc-2]  14 B")

	out, err = env.run(t, "rename", "doc-2", "Attention Is All You Need")
	require.NoError(t, err)
	assert.Contains(t, out, "Renamed doc-2 to Attention Is All You Need")

	dest := filepath.Join(dir, "copy.pdf")
	_, err = env.run(t, "get", "doc-2", "-o", dest)
	require.NoError(t, err)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 hello", string(data))

	_, err = env.run(t, "mv", "doc-2")
	require.Error(t, err)

	_, err = env.run(t, "mv", "doc-2", "--root")
	require.NoError(t, err)
	out, err = env.run(t, "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "\nAttention Is All You Need  [doc-2]")

	_, err = env.run(t, "rm", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, env.store.Count(env.user.ID))
}

func TestUpload_PartialFailure(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)

	dir := t.TempDir()
	good := filepath.Join(dir, "book.epub")
	bad := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(good, []byte("epub"), 0644))
	require.NoError(t, os.WriteFile(bad, []byte("text"), 0644))

	_, err := env.run(t, "upload", good, bad, filepath.Join(dir, "missing.pdf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 of 3 uploads failed")
	assert.Equal(t, 1, env.store.Count(env.user.ID))
}

func TestCredentials_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.yaml")

	creds, err := LoadCredentials(path)
	require.NoError(t, err)
	assert.Empty(t, creds.Server)
	assert.Equal(t, path, creds.Path())

	creds.Server = "http://shelf.local"
	creds.Token = "abc"
	require.NoError(t, creds.Save())

	loaded, err := LoadCredentials(path)
	require.NoError(t, err)
	assert.Equal(t, "http://shelf.local", loaded.Server)
	assert.Equal(t, "abc", loaded.Token)
}

func TestLocate(t *testing.T) {
	child := &models.HashDoc{ID: "c"}
	folder := &models.HashDoc{ID: "f", Type: models.CollectionType, Children: []*models.HashDoc{child}}
	roots := []*models.HashDoc{{ID: "a"}, folder}

	loc, ok := locate(roots, "", "c")
	require.True(t, ok)
	assert.Equal(t, "f", loc.parent)
	assert.Equal(t, 0, loc.index)

	loc, ok = locate(roots, "", "f")
	require.True(t, ok)
	assert.Equal(t, "", loc.parent)
	assert.Equal(t, 1, loc.index)

	_, ok = locate(roots, "", "zzz")
	assert.False(t, ok)
}
