package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docshelf/backend/internal/events"
	"github.com/docshelf/backend/internal/models"
)

func TestCreateFolder(t *testing.T) {
	ts, token := signedIn(t)
	uid := "reader@example.com"
	ch := ts.events.Subscribe(uid)
	defer ts.events.Unsubscribe(ch)

	rec := ts.do(t, http.MethodPost, "/ui/api/folders", token,
		jsonBody(t, map[string]string{"name": "  Papers  ", "parentId": ""}), echo.MIMEApplicationJSON)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var doc models.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, "Papers", doc.Name)
	assert.Equal(t, models.CollectionType, doc.Type)
	assert.Equal(t, 1, doc.Version)

	select {
	case ev := <-ch:
		assert.Equal(t, events.EventDocAdded, ev.Type)
		assert.Equal(t, doc.ID, ev.DocumentID)
		assert.Equal(t, string(models.CollectionType), ev.DocType)
	case <-time.After(time.Second):
		t.Fatal("no DocAdded notification")
	}

	// Nested folder.
	rec = ts.do(t, http.MethodPost, "/ui/api/folders", token,
		jsonBody(t, map[string]string{"name": "Inner", "parentId": doc.ID}), echo.MIMEApplicationJSON)
	require.Equal(t, http.StatusOK, rec.Code)
	var inner models.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inner))
	assert.Equal(t, doc.ID, inner.Parent)
}

func TestCreateFolder_Errors(t *testing.T) {
	ts, token := signedIn(t)
	uid := "reader@example.com"
	file, err := ts.store.CreateDocument(context.Background(), uid, "a.pdf", "", strings.NewReader("x"))
	require.NoError(t, err)

	tests := []struct {
		name       string
		body       map[string]string
		wantStatus int
		wantCode   string
	}{
		{"empty name", map[string]string{"name": ""}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"blank name", map[string]string{"name": "   \t"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown parent", map[string]string{"name": "X", "parentId": "missing"}, http.StatusNotFound, "NOT_FOUND"},
		{"parent is a document", map[string]string{"name": "X", "parentId": file.ID}, http.StatusBadRequest, "BAD_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := ts.store.Count(uid)
			rec := ts.do(t, http.MethodPost, "/ui/api/folders", token, jsonBody(t, tt.body), echo.MIMEApplicationJSON)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodeAPIError(t, rec).Code)
			assert.Equal(t, before, ts.store.Count(uid))
		})
	}
}

func TestCreateFolder_StoreFailure(t *testing.T) {
	ts, token := signedIn(t)
	ts.store.Err = errors.New("disk full")

	rec := ts.do(t, http.MethodPost, "/ui/api/folders", token,
		jsonBody(t, map[string]string{"name": "X"}), echo.MIMEApplicationJSON)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	apiErr := decodeAPIError(t, rec)
	assert.Equal(t, "INTERNAL_ERROR", apiErr.Code)
	assert.Equal(t, "disk full", apiErr.Details)
}
