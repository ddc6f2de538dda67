// handlers_auth.go - Sign-in, session and user handlers
package api

import (
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/docshelf/backend/internal/auth"
	"github.com/docshelf/backend/internal/logging"
	"github.com/docshelf/backend/internal/metrics"
	"github.com/docshelf/backend/internal/models"
	"github.com/docshelf/backend/internal/storage"
)

// AuthOptions configures sign-in behaviour.
type AuthOptions struct {
	// CreateFirstUser turns the first login into the creation of an admin
	// account while the user store is empty.
	CreateFirstUser  bool
	RegistrationOpen bool
	SecureCookie     bool
}

// AuthHandlerImpl implements the AuthHandler interface
type AuthHandlerImpl struct {
	users    storage.UserStore
	sessions SessionManager
	tokens   *auth.Auth
	opts     AuthOptions

	bootstrapMu sync.Mutex
}

// NewAuthHandler creates a new auth handler instance
func NewAuthHandler(users storage.UserStore, sessions SessionManager, tokens *auth.Auth, opts AuthOptions) *AuthHandlerImpl {
	return &AuthHandlerImpl{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		opts:     opts,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *loginRequest) validate() error {
	r.Email = strings.TrimSpace(r.Email)
	if r.Email == "" {
		return NewValidationError("email")
	}
	if r.Password == "" {
		return NewValidationError("password")
	}
	return nil
}

// bootstrap registers the first account as admin. It is a no-op once any
// account exists.
func (h *AuthHandlerImpl) bootstrap(c echo.Context, req loginRequest) error {
	h.bootstrapMu.Lock()
	defer h.bootstrapMu.Unlock()

	if !h.opts.CreateFirstUser {
		return nil
	}
	existing, err := h.users.GetUsers()
	if err != nil {
		return NewInternalError("failed to load users", err)
	}
	if len(existing) > 0 {
		h.opts.CreateFirstUser = false
		return nil
	}

	account, err := models.NewAccount(req.Email, req.Password)
	if err != nil {
		return NewBadRequestError("cannot create admin user", err)
	}
	account.IsAdmin = true
	if err := h.users.RegisterUser(account); err != nil {
		return NewInternalError("failed to register admin user", err)
	}
	h.opts.CreateFirstUser = false
	logging.FromEcho(c).Info("created first admin user", zap.String("user", account.ID))
	return nil
}

// HandleLogin verifies credentials, opens a web session and returns the
// signed token as text. The token is also set as a cookie.
func (h *AuthHandlerImpl) HandleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	if err := h.bootstrap(c, req); err != nil {
		return err
	}

	log := logging.FromEcho(c)
	account, err := h.users.GetUser(req.Email)
	if err != nil {
		metrics.RecordAuthAttempt(false)
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("login failed, unknown user", zap.String("email", req.Email), zap.String("ip", c.RealIP()))
			return NewUnauthorizedError("invalid email or password")
		}
		return NewInternalError("failed to load user", err)
	}
	if !account.CheckPassword(req.Password) {
		metrics.RecordAuthAttempt(false)
		log.Warn("login failed, wrong password", zap.String("email", req.Email), zap.String("ip", c.RealIP()))
		return NewUnauthorizedError("invalid email or password")
	}

	sess := h.sessions.Create(account.ID, h.tokens.TTL())
	token, _, err := h.tokens.Issue(account.ID, account.Email, sess.ID, account.IsAdmin)
	if err != nil {
		h.sessions.Revoke(sess.ID)
		return NewInternalError("failed to issue token", err)
	}
	metrics.RecordAuthAttempt(true)

	c.SetCookie(auth.NewCookie(token, h.tokens.TTL(), h.opts.SecureCookie))
	log.Info("user signed in", zap.String("user", account.ID), zap.String("session", sess.ID))
	return c.String(http.StatusOK, token)
}

// HandleLogout revokes the session of the presented token and clears the
// cookie.
func (h *AuthHandlerImpl) HandleLogout(c echo.Context) error {
	if claims := auth.GetClaims(c); claims != nil {
		h.sessions.Revoke(claims.BrowserID)
		logging.FromEcho(c).Info("user signed out", zap.String("user", claims.UserID))
	}
	c.SetCookie(auth.ExpiredCookie(h.opts.SecureCookie))
	return c.NoContent(http.StatusOK)
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// HandleRegister creates a regular account while registrations are open.
func (h *AuthHandlerImpl) HandleRegister(c echo.Context) error {
	if !h.opts.RegistrationOpen {
		return NewForbiddenError("registrations are closed")
	}
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if strings.TrimSpace(req.Email) == "" {
		return NewValidationError("email")
	}

	account, err := models.NewAccount(req.Email, req.Password)
	if err != nil {
		return NewBadRequestError("cannot create user", err)
	}
	account.Name = strings.TrimSpace(req.Name)
	if err := h.users.RegisterUser(account); err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			return NewConflictError("user already exists")
		}
		return NewInternalError("failed to register user", err)
	}
	logging.FromEcho(c).Info("registered user", zap.String("user", account.ID))
	return c.JSON(http.StatusOK, account.Profile())
}

// HandleProfile returns the signed-in user.
func (h *AuthHandlerImpl) HandleProfile(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	account, err := h.users.GetUser(uid)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return NewNotFoundError("user", uid)
		}
		return NewInternalError("failed to load user", err)
	}
	return c.JSON(http.StatusOK, account.Profile())
}

// HandleListUsers returns every account. Admin only.
func (h *AuthHandlerImpl) HandleListUsers(c echo.Context) error {
	accounts, err := h.users.GetUsers()
	if err != nil {
		return NewInternalError("unable to get users", err)
	}
	list := make([]models.AppUser, 0, len(accounts))
	for _, a := range accounts {
		list = append(list, a.AppUser())
	}
	return c.JSON(http.StatusOK, list)
}
