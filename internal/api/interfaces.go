// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/docshelf/backend/internal/events"
	"github.com/docshelf/backend/internal/models"
)

// AuthHandler handles sign-in and user operations
type AuthHandler interface {
	HandleLogin(c echo.Context) error
	HandleLogout(c echo.Context) error
	HandleProfile(c echo.Context) error
	HandleListUsers(c echo.Context) error
	HandleChangePassword(c echo.Context) error
	HandleGetUser(c echo.Context) error
	HandleCreateUser(c echo.Context) error
	HandleUpdateUser(c echo.Context) error
	HandleDeleteUser(c echo.Context) error
}

// DocumentHandler handles document operations
type DocumentHandler interface {
	HandleUploadDocuments(c echo.Context) error
	HandleListDocuments(c echo.Context) error
	HandleGetDocument(c echo.Context) error
	HandleGetMetadata(c echo.Context) error
	HandleUpdateDocument(c echo.Context) error
	HandleDeleteDocument(c echo.Context) error
}

// FolderHandler handles folder creation
type FolderHandler interface {
	HandleCreateFolder(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// NotificationHandler streams document notifications
type NotificationHandler interface {
	HandleWebSocket(c echo.Context) error
}

// SessionManager defines the interface for web session management
// This allows mocking in tests
type SessionManager interface {
	Create(userID string, ttl time.Duration) *models.WebSession
	Revoke(id string) bool
	RevokeUser(userID string) int
}

// Publisher receives document notifications
type Publisher interface {
	Publish(e events.Event)
}

// Subscriber hands out per-user notification channels
type Subscriber interface {
	Subscribe(userID string) chan events.Event
	Unsubscribe(ch chan events.Event)
}
