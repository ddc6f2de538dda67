// handlers_documents.go - Document operation handlers
package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/docshelf/backend/internal/events"
	"github.com/docshelf/backend/internal/logging"
	"github.com/docshelf/backend/internal/metrics"
	"github.com/docshelf/backend/internal/models"
	"github.com/docshelf/backend/internal/storage"
	"github.com/docshelf/backend/internal/tree"
)

var contentTypes = map[string]string{
	".pdf":  "application/pdf",
	".epub": "application/epub+zip",
}

// DocumentHandlerImpl implements the DocumentHandler interface
type DocumentHandlerImpl struct {
	store  storage.Store
	events Publisher
	// uploadTimeout bounds the storage writes of one upload request.
	uploadTimeout time.Duration
}

// NewDocumentHandler creates a new document handler instance
func NewDocumentHandler(store storage.Store, events Publisher) *DocumentHandlerImpl {
	return &DocumentHandlerImpl{
		store:  store,
		events: events,
	}
}

// HandleUploadDocuments stores every "file" part of a multipart form under
// the optional "parent" folder and returns the created documents.
func (h *DocumentHandlerImpl) HandleUploadDocuments(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}

	form, err := c.MultipartForm()
	if err != nil {
		return NewBadRequestError("not a multipart form", err)
	}
	defer form.RemoveAll()

	parent := ""
	if values := form.Value["parent"]; len(values) > 0 {
		parent = values[0]
	}
	files := form.File["file"]
	if len(files) == 0 {
		return NewValidationError("file")
	}

	log := logging.FromEcho(c)
	ctx := c.Request().Context()
	if h.uploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.uploadTimeout)
		defer cancel()
	}
	docs := make([]*models.Document, 0, len(files))
	for _, fh := range files {
		src, err := fh.Open()
		if err != nil {
			return NewBadRequestError("cannot open attachment", err)
		}
		log.Info("uploading document",
			zap.String("user", uid),
			zap.String("file", fh.Filename),
			zap.Int64("size", fh.Size),
			zap.String("parent", parent))

		doc, err := h.store.CreateDocument(ctx, uid, fh.Filename, parent, src)
		src.Close()
		metrics.RecordDocumentUpload(fh.Size, err == nil)
		if err != nil {
			return storageError(fmt.Sprintf("cannot store %s", fh.Filename), parent, err)
		}
		publish(h.events, uid, events.EventDocAdded, doc)
		docs = append(docs, doc)
	}

	return c.JSON(http.StatusOK, docs)
}

// HandleListDocuments returns the document tree of the signed-in user, as
// msgpack when the client accepts it.
func (h *DocumentHandlerImpl) HandleListDocuments(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}

	flat, err := h.store.List(uid)
	if err != nil {
		return NewInternalError("failed to list documents", err)
	}
	roots := tree.Build(flat)
	if roots == nil {
		roots = []*models.HashDoc{}
	}

	if wantsMsgpack(c) {
		data, err := msgpack.Marshal(roots)
		if err != nil {
			return NewInternalError("failed to encode msgpack", err)
		}
		return c.Blob(http.StatusOK, "application/msgpack", data)
	}
	return c.JSON(http.StatusOK, roots)
}

// HandleGetDocument streams the content of a document as an attachment.
func (h *DocumentHandlerImpl) HandleGetDocument(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	id := c.Param("docid")
	if id == "" {
		return NewValidationError("docid")
	}

	rc, doc, err := h.store.Open(c.Request().Context(), uid, id)
	if err != nil {
		return storageError("cannot open document", id, err)
	}
	defer rc.Close()

	contentType, ok := contentTypes[strings.ToLower(doc.Extension)]
	if !ok {
		contentType = echo.MIMEOctetStream
	}
	filename := doc.Name + doc.Extension
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(filename)))
	if doc.Size > 0 {
		c.Response().Header().Set(echo.HeaderContentLength, fmt.Sprint(doc.Size))
	}
	return c.Stream(http.StatusOK, contentType, rc)
}

// HandleGetMetadata returns the stored metadata of a document.
func (h *DocumentHandlerImpl) HandleGetMetadata(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	id := c.Param("docid")

	md, err := h.store.GetMetadata(uid, id)
	if err != nil {
		return storageError("cannot read metadata", id, err)
	}
	return c.JSON(http.StatusOK, md)
}

type updateDocumentRequest struct {
	Name            string `json:"name"`
	ParentID        string `json:"parentId"`
	SetParentToRoot bool   `json:"setParentToRoot"`
}

// HandleUpdateDocument renames and/or moves a document. A notification is
// published only when something changed.
func (h *DocumentHandlerImpl) HandleUpdateDocument(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	id := c.Param("docid")

	var req updateDocumentRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	dirty := false
	if strings.TrimSpace(req.Name) != "" {
		changed, err := h.store.Rename(uid, id, req.Name)
		if err != nil {
			return storageError("cannot rename document", id, err)
		}
		dirty = dirty || changed
	}

	if req.ParentID != "" || req.SetParentToRoot {
		parent := req.ParentID
		if req.SetParentToRoot {
			parent = ""
		}
		changed, err := h.store.Move(uid, id, parent)
		if err != nil {
			return storageError("cannot move document", id, err)
		}
		dirty = dirty || changed
	}

	if dirty {
		md, err := h.store.GetMetadata(uid, id)
		if err == nil {
			publish(h.events, uid, events.EventDocUpdated, &models.Document{
				ID:      id,
				Name:    md.VisibleName,
				Type:    md.Type,
				Version: md.Version,
				Parent:  md.Parent,
			})
		}
		logging.FromEcho(c).Info("document updated", zap.String("user", uid), zap.String("id", id))
	}

	return c.NoContent(http.StatusOK)
}

// HandleDeleteDocument removes a document, or a folder with everything in it.
func (h *DocumentHandlerImpl) HandleDeleteDocument(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	id := c.Param("docid")

	if err := h.store.Delete(c.Request().Context(), uid, id); err != nil {
		return storageError("cannot delete document", id, err)
	}
	publish(h.events, uid, events.EventDocDeleted, &models.Document{ID: id})
	logging.FromEcho(c).Info("document deleted", zap.String("user", uid), zap.String("id", id))
	return c.NoContent(http.StatusOK)
}
