// handlers_users.go - Password change and admin user management
package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/docshelf/backend/internal/logging"
	"github.com/docshelf/backend/internal/models"
	"github.com/docshelf/backend/internal/storage"
)

type changePasswordRequest struct {
	UserID          string `json:"userid"`
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type createUserRequest struct {
	ID       string `json:"userid"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"newPassword"`
	IsAdmin  bool   `json:"admin"`
}

type updateUserRequest struct {
	Email       string `json:"email"`
	Name        string `json:"name"`
	NewPassword string `json:"newPassword"`
	IsAdmin     *bool  `json:"admin"`
}

func (h *AuthHandlerImpl) loadUser(uid string) (*models.Account, error) {
	account, err := h.users.GetUser(uid)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, NewNotFoundError("user", uid)
		}
		return nil, NewInternalError("failed to load user", err)
	}
	return account, nil
}

// HandleChangePassword replaces the password of the signed-in user after
// checking the current one.
func (h *AuthHandlerImpl) HandleChangePassword(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.UserID != "" && req.UserID != uid {
		logging.FromEcho(c).Warn("password change for another user refused",
			zap.String("user", uid), zap.String("target", req.UserID))
		return NewForbiddenError("cannot change the password of another user")
	}
	if req.NewPassword == "" {
		return NewValidationError("newPassword")
	}

	account, err := h.loadUser(uid)
	if err != nil {
		return err
	}
	if !account.CheckPassword(req.CurrentPassword) {
		return NewBadRequestError("current password is wrong", nil)
	}
	if err := account.SetPassword(req.NewPassword); err != nil {
		return NewBadRequestError("cannot set password", err)
	}
	if err := h.users.UpdateUser(account); err != nil {
		return NewInternalError("failed to update user", err)
	}

	logging.FromEcho(c).Info("password changed", zap.String("user", uid))
	return c.JSON(http.StatusOK, account.Profile())
}

// HandleGetUser returns one account. Admin only.
func (h *AuthHandlerImpl) HandleGetUser(c echo.Context) error {
	account, err := h.loadUser(c.Param("userid"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, account.Profile())
}

// HandleCreateUser creates an account. Admin only. The id defaults to the
// email.
func (h *AuthHandlerImpl) HandleCreateUser(c echo.Context) error {
	var req createUserRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if id := c.Param("userid"); id != "" {
		req.ID = id
	}
	req.Email = strings.TrimSpace(req.Email)
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		req.ID = req.Email
	}
	if req.ID == "" {
		return NewValidationError("userid")
	}

	account, err := models.NewAccount(req.ID, req.Password)
	if err != nil {
		return NewBadRequestError("cannot create user", err)
	}
	if req.Email != "" {
		account.Email = req.Email
	}
	account.Name = strings.TrimSpace(req.Name)
	account.IsAdmin = req.IsAdmin

	if err := h.users.RegisterUser(account); err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			return NewConflictError("user already exists")
		}
		return NewInternalError("failed to register user", err)
	}
	logging.FromEcho(c).Info("user created", zap.String("user", account.ID), zap.Bool("admin", account.IsAdmin))
	return c.JSON(http.StatusCreated, account.AppUser())
}

// HandleUpdateUser changes email, name, password or the admin flag of an
// account. Admin only. Admins cannot revoke their own admin flag.
func (h *AuthHandlerImpl) HandleUpdateUser(c echo.Context) error {
	self, err := userID(c)
	if err != nil {
		return err
	}
	uid := c.Param("userid")
	var req updateUserRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	account, err := h.loadUser(uid)
	if err != nil {
		return err
	}
	if email := strings.TrimSpace(req.Email); email != "" {
		account.Email = email
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		account.Name = name
	}
	if req.NewPassword != "" {
		if err := account.SetPassword(req.NewPassword); err != nil {
			return NewBadRequestError("cannot set password", err)
		}
	}
	if req.IsAdmin != nil {
		if uid == self && !*req.IsAdmin {
			return NewBadRequestError("cannot remove your own admin rights", nil)
		}
		account.IsAdmin = *req.IsAdmin
	}

	if err := h.users.UpdateUser(account); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return NewNotFoundError("user", uid)
		}
		return NewInternalError("failed to update user", err)
	}
	logging.FromEcho(c).Info("user updated", zap.String("user", uid), zap.String("by", self))
	return c.JSON(http.StatusOK, account.AppUser())
}

// HandleDeleteUser removes an account and ends its sessions. Admin only.
// The signed-in user cannot delete themselves.
func (h *AuthHandlerImpl) HandleDeleteUser(c echo.Context) error {
	self, err := userID(c)
	if err != nil {
		return err
	}
	uid := c.Param("userid")
	if uid == self {
		return NewBadRequestError("cannot delete the signed-in user", nil)
	}

	if err := h.users.RemoveUser(uid); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return NewNotFoundError("user", uid)
		}
		return NewInternalError("failed to remove user", err)
	}
	revoked := h.sessions.RevokeUser(uid)
	logging.FromEcho(c).Info("user removed",
		zap.String("user", uid), zap.String("by", self), zap.Int("sessions_revoked", revoked))
	return c.NoContent(http.StatusOK)
}
