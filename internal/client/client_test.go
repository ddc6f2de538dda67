package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/docshelf/backend/internal/models"
	"github.com/docshelf/backend/internal/upload"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Options{BaseURL: srv.URL, RetryMax: -1, UploadTimeout: 5 * time.Second})
}

func TestClient_Login(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ui/api/login", func(w http.ResponseWriter, r *http.Request) {
		var form map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&form))
		if form["password"] != "secret" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"code":"UNAUTHORIZED","message":"invalid credentials"}`))
			return
		}
		w.Write([]byte("tok-123"))
	})
	mux.HandleFunc("/ui/api/profile", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(models.User{ID: "alice", Email: "alice@example.com"})
	})
	c := newTestClient(t, mux)

	_, err := c.Login(context.Background(), "alice@example.com", "wrong")
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "UNAUTHORIZED", he.Code)

	token, err := c.Login(context.Background(), "alice@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", token)

	u, err := c.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", u.ID)
}

func TestClient_ListDocumentsMsgpack(t *testing.T) {
	tree := []*models.HashDoc{{
		ID:   "f1",
		Name: "Books",
		Type: models.CollectionType,
		Children: []*models.HashDoc{
			{ID: "d1", Name: "dune", Type: models.DocumentType, Parent: "f1", Size: 42},
		},
	}}

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/msgpack", r.Header.Get("Accept"))
		data, err := msgpack.Marshal(tree)
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/msgpack")
		w.Write(data)
	}))

	docs, err := c.ListDocuments(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Books", docs[0].Name)
	require.Len(t, docs[0].Children, 1)
	assert.Equal(t, int64(42), docs[0].Children[0].Size)
}

func TestClient_CreateFolder(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/ui/api/folders", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if strings.TrimSpace(body["name"]) == "" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code":"VALIDATION_ERROR","message":"validation failed for field: name"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(models.Document{ID: "new", Name: body["name"], Type: models.CollectionType, Version: 1, Parent: body["parentId"]})
	}))

	doc, err := c.CreateFolder(context.Background(), "Papers", "root-folder")
	require.NoError(t, err)
	assert.Equal(t, "new", doc.ID)
	assert.Equal(t, "root-folder", doc.Parent)
	assert.True(t, doc.IsFolder())

	_, err = c.CreateFolder(context.Background(), " ", "")
	assert.True(t, IsStatus(err, http.StatusBadRequest))
}

// dropFirst closes the connection of the first request without a response
// and hands the rest to next.
func dropFirst(t *testing.T, calls *int32, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(calls, 1) == 1 {
			conn, _, err := w.(http.Hijacker).Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		next(w, r)
	}
}

func TestClient_CreateFolderNotRetried(t *testing.T) {
	var calls int32
	var mu sync.Mutex
	var created []string
	srv := httptest.NewServer(dropFirst(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		created = append(created, body["name"])
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(models.Document{ID: "new", Name: body["name"], Type: models.CollectionType})
	}))
	t.Cleanup(srv.Close)
	c := New(Options{BaseURL: srv.URL, RetryMax: 3})

	_, err := c.CreateFolder(context.Background(), "Papers", "")
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	mu.Lock()
	assert.Empty(t, created)
	mu.Unlock()

	// The caller decides whether to try again.
	_, err = c.CreateFolder(context.Background(), "Papers", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Papers"}, created)
}

func TestClient_ListDocumentsRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(dropFirst(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]*models.HashDoc{{ID: "d1", Name: "dune", Type: models.DocumentType}})
	}))
	t.Cleanup(srv.Close)
	c := New(Options{BaseURL: srv.URL, RetryMax: 3})

	docs, err := c.ListDocuments(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(2))
}

func TestIdempotent(t *testing.T) {
	for _, m := range []string{http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete} {
		assert.True(t, idempotent(m), m)
	}
	for _, m := range []string{http.MethodPost, http.MethodPatch} {
		assert.False(t, idempotent(m), m)
	}
}

func uploadHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, err := io.ReadAll(file)
		require.NoError(t, err)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode([]models.Document{{
			ID:      "doc-" + header.Filename,
			Name:    strings.TrimSuffix(header.Filename, ".pdf"),
			Type:    models.DocumentType,
			Version: len(data),
			Parent:  r.FormValue("parent"),
		}})
	}
}

func TestClient_UploadProgress(t *testing.T) {
	c := newTestClient(t, uploadHandler(t))

	payload := bytes.Repeat([]byte("x"), 100*1024)
	f := upload.NewUploadableFile(context.Background(), upload.NumericID(7), "big.pdf", int64(len(payload)), bytes.NewReader(payload))
	f.Parent = "folder-1"

	var mu sync.Mutex
	var states []upload.FileState
	tr := c.Upload(f, func(s upload.FileState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	docs, err := tr.Wait()
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc-big.pdf", docs[0].ID)
	assert.Equal(t, len(payload), docs[0].Version)
	assert.Equal(t, "folder-1", docs[0].Parent)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(states), 2)
	assert.Equal(t, upload.StatusUploading, states[0].Status)
	assert.Equal(t, int64(0), states[0].UploadedSize)

	last := int64(-1)
	completed := 0
	for _, s := range states {
		assert.GreaterOrEqual(t, s.UploadedSize, last, "events must arrive in order")
		last = s.UploadedSize
		if s.Status == upload.StatusUploaded {
			completed++
		}
	}
	assert.Equal(t, 1, completed)
	assert.Equal(t, int64(len(payload)), last)
	assert.Equal(t, upload.StatusUploaded, tr.State().Status)
}

func TestClient_UploadServerError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":"BAD_REQUEST","message":"unsupported extension"}`))
	}))

	f := upload.NewUploadableFile(context.Background(), "1", "notes.txt", 3, strings.NewReader("abc"))
	_, err := c.Upload(f, nil).Wait()
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusBadRequest))
}

func TestClient_UploadAbort(t *testing.T) {
	started := make(chan struct{})
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))

	f := upload.NewUploadableFile(context.Background(), "1", "a.pdf", 3, strings.NewReader("abc"))
	tr := c.Upload(f, nil)
	<-started
	tr.Abort()

	_, err := tr.Wait()
	assert.ErrorIs(t, err, context.Canceled)
}
