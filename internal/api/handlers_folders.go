// handlers_folders.go - Folder creation handler
package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/docshelf/backend/internal/events"
	"github.com/docshelf/backend/internal/logging"
	"github.com/docshelf/backend/internal/metrics"
	"github.com/docshelf/backend/internal/storage"
)

// FolderHandlerImpl implements the FolderHandler interface
type FolderHandlerImpl struct {
	store  storage.Store
	events Publisher
}

// NewFolderHandler creates a new folder handler instance
func NewFolderHandler(store storage.Store, events Publisher) *FolderHandlerImpl {
	return &FolderHandlerImpl{
		store:  store,
		events: events,
	}
}

type createFolderRequest struct {
	Name     string `json:"name"`
	ParentID string `json:"parentId"`
}

func (r *createFolderRequest) validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return NewValidationError("name")
	}
	return nil
}

// HandleCreateFolder creates a folder and returns its id, name, type and
// version.
func (h *FolderHandlerImpl) HandleCreateFolder(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}

	var req createFolderRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	doc, err := h.store.CreateFolder(c.Request().Context(), uid, req.Name, req.ParentID)
	if err != nil {
		return storageError("cannot create folder", req.ParentID, err)
	}
	metrics.RecordFolderCreated()
	publish(h.events, uid, events.EventDocAdded, doc)
	logging.FromEcho(c).Info("folder created",
		zap.String("user", uid),
		zap.String("id", doc.ID),
		zap.String("parent", doc.Parent))

	return c.JSON(http.StatusOK, doc)
}
