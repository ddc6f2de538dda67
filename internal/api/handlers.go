package api

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/docshelf/backend/internal/auth"
	"github.com/docshelf/backend/internal/events"
	"github.com/docshelf/backend/internal/models"
)

// userID returns the signed-in user of the request.
func userID(c echo.Context) (string, error) {
	claims := auth.GetClaims(c)
	if claims == nil || claims.UserID == "" {
		return "", NewUnauthorizedError("not signed in")
	}
	return claims.UserID, nil
}

// publish sends a notification if a publisher is configured.
func publish(p Publisher, uid, eventType string, doc *models.Document) {
	if p == nil || doc == nil {
		return
	}
	p.Publish(events.Event{
		Type:       eventType,
		UserID:     uid,
		DocumentID: doc.ID,
		Name:       doc.Name,
		Parent:     doc.Parent,
		DocType:    string(doc.Type),
		Version:    doc.Version,
	})
}

// wantsMsgpack reports whether the client asked for a msgpack body.
func wantsMsgpack(c echo.Context) bool {
	return strings.Contains(c.Request().Header.Get(echo.HeaderAccept), "application/msgpack")
}
