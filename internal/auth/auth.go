// Package auth issues and validates the web tokens of the docshelf API.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/docshelf/backend/internal/logging"
)

const (
	// CookieName is the cookie carrying the web token.
	CookieName = ".AuthDocshelf"
	// AdminRole marks administrators in the token roles.
	AdminRole = "Admin"
	// UserRole is the role of regular users.
	UserRole = "User"
	// WebUsage is the audience of web tokens.
	WebUsage = "web"

	issuer    = "docshelf WEB"
	claimsKey = "auth.claims"
)

// ErrInvalidToken is returned for tokens that fail verification.
var ErrInvalidToken = errors.New("missing or incorrect token")

// Claims holds the web token claims.
type Claims struct {
	UserID    string   `json:"UserID"`
	BrowserID string   `json:"BrowserID"`
	Email     string   `json:"Email"`
	Roles     []string `json:"Roles"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the claims carry the admin role.
func (c *Claims) IsAdmin() bool {
	for _, r := range c.Roles {
		if r == AdminRole {
			return true
		}
	}
	return false
}

// SessionChecker validates that the browser session of a token is still live.
type SessionChecker interface {
	Touch(id string) bool
}

// Auth signs and verifies web tokens.
type Auth struct {
	secret   []byte
	ttl      time.Duration
	sessions SessionChecker
	now      func() time.Time
}

// New creates a new Auth. sessions may be nil, in which case tokens are not
// checked for revocation.
func New(secret string, ttl time.Duration, sessions SessionChecker) *Auth {
	return &Auth{
		secret:   []byte(secret),
		ttl:      ttl,
		sessions: sessions,
		now:      time.Now,
	}
}

// TTL returns the lifetime of issued tokens.
func (a *Auth) TTL() time.Duration { return a.ttl }

// Issue signs a token for the given user and browser session.
func (a *Auth) Issue(userID, email, browserID string, admin bool) (string, *Claims, error) {
	now := a.now()
	roles := []string{UserRole}
	if admin {
		roles = []string{AdminRole}
	}
	claims := &Claims{
		UserID:    userID,
		BrowserID: browserID,
		Email:     email,
		Roles:     roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{WebUsage},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", nil, fmt.Errorf("signing token: %w", err)
	}
	return signed, claims, nil
}

// Parse verifies a token string and returns its claims.
func (a *Auth) Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	},
		jwt.WithAudience(WebUsage),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// extractToken reads the token from the auth cookie, then from the
// Authorization header.
func extractToken(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// Middleware rejects requests without a valid token and stores the claims
// on the echo context.
func (a *Auth) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr := extractToken(c.Request())
			if tokenStr == "" {
				logging.FromEcho(c).Debug("missing token")
				return echo.NewHTTPError(http.StatusUnauthorized, ErrInvalidToken.Error())
			}

			claims, err := a.Parse(tokenStr)
			if err != nil {
				logging.FromEcho(c).Warn("token verification failed", zap.Error(err))
				return echo.NewHTTPError(http.StatusUnauthorized, ErrInvalidToken.Error())
			}

			if a.sessions != nil && !a.sessions.Touch(claims.BrowserID) {
				logging.FromEcho(c).Warn("session revoked or expired",
					zap.String("user", claims.UserID),
					zap.String("session", claims.BrowserID))
				return echo.NewHTTPError(http.StatusUnauthorized, ErrInvalidToken.Error())
			}

			c.Set(claimsKey, claims)
			return next(c)
		}
	}
}

// AdminMiddleware rejects requests from non-admin users. It must run after
// Middleware.
func AdminMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := GetClaims(c)
			if claims == nil || !claims.IsAdmin() {
				logging.FromEcho(c).Warn("not admin")
				return echo.NewHTTPError(http.StatusForbidden, "admin role required")
			}
			return next(c)
		}
	}
}

// GetClaims returns the claims stored by Middleware, or nil.
func GetClaims(c echo.Context) *Claims {
	claims, _ := c.Get(claimsKey).(*Claims)
	return claims
}

// SetClaims stores claims on the context. Used by tests and by handlers that
// authenticate inline.
func SetClaims(c echo.Context, claims *Claims) {
	c.Set(claimsKey, claims)
}

// NewCookie builds the auth cookie for token.
func NewCookie(token string, ttl time.Duration, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// ExpiredCookie clears the auth cookie.
func ExpiredCookie(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	}
}
