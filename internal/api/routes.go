// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/docshelf/backend/internal/auth"
	"github.com/docshelf/backend/internal/events"
	"github.com/docshelf/backend/internal/storage"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store       storage.Store
	Users       storage.UserStore
	Sessions    SessionManager
	Auth        *auth.Auth
	Events      *events.Broadcaster
	AuthOptions AuthOptions
	// AllowDeletion registers the document DELETE route.
	AllowDeletion bool
	// AllowOrigin checks websocket origins. nil means same-origin only.
	AllowOrigin func(r *http.Request) bool
	// UploadTimeout bounds storing the files of one upload. Zero means no
	// limit beyond the request's own.
	UploadTimeout time.Duration
	Backend       string
	Version       string
}

// Handlers holds all handler instances
type Handlers struct {
	Health        HealthHandler
	Auth          *AuthHandlerImpl
	Documents     DocumentHandler
	Folders       FolderHandler
	Notifications NotificationHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	var publisher Publisher
	var subscriber Subscriber
	if deps.Events != nil {
		publisher = deps.Events
		subscriber = deps.Events
	}

	documents := NewDocumentHandler(deps.Store, publisher)
	documents.uploadTimeout = deps.UploadTimeout

	h := &Handlers{
		Health:    NewHealthHandler(deps.Version, deps.Backend),
		Auth:      NewAuthHandler(deps.Users, deps.Sessions, deps.Auth, deps.AuthOptions),
		Documents: documents,
		Folders:   NewFolderHandler(deps.Store, publisher),
	}
	if subscriber != nil {
		h.Notifications = NewWebSocketHandler(subscriber, deps.AllowOrigin)
	}
	return h
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers, deps *Dependencies) {
	// Health check
	e.GET("/api/health", handlers.Health.HandleHealth)

	ui := e.Group("/ui/api")
	ui.POST("/login", handlers.Auth.HandleLogin)
	ui.POST("/register", handlers.Auth.HandleRegister)

	authed := ui.Group("", deps.Auth.Middleware())
	authed.POST("/logout", handlers.Auth.HandleLogout)
	authed.GET("/profile", handlers.Auth.HandleProfile)
	authed.PUT("/profile/password", handlers.Auth.HandleChangePassword)

	admin := authed.Group("/users", auth.AdminMiddleware())
	admin.GET("", handlers.Auth.HandleListUsers)
	admin.POST("", handlers.Auth.HandleCreateUser)
	admin.GET("/:userid", handlers.Auth.HandleGetUser)
	admin.POST("/:userid", handlers.Auth.HandleCreateUser)
	admin.PUT("/:userid", handlers.Auth.HandleUpdateUser)
	admin.DELETE("/:userid", handlers.Auth.HandleDeleteUser)

	// Documents
	authed.POST("/documents/upload", handlers.Documents.HandleUploadDocuments)
	authed.GET("/documents", handlers.Documents.HandleListDocuments)
	authed.GET("/documents/:docid", handlers.Documents.HandleGetDocument)
	authed.GET("/documents/:docid/metadata", handlers.Documents.HandleGetMetadata)
	authed.PUT("/documents/:docid", handlers.Documents.HandleUpdateDocument)

	// Conditional delete based on config
	if deps.AllowDeletion {
		authed.DELETE("/documents/:docid", handlers.Documents.HandleDeleteDocument)
	}

	// Folders
	authed.POST("/folders", handlers.Folders.HandleCreateFolder)

	// Notifications
	if handlers.Notifications != nil {
		authed.GET("/ws", handlers.Notifications.HandleWebSocket)
	}
}
