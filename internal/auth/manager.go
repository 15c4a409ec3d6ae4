package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/smallbiznis/payflow/internal/config"
)

const DefaultCookieName = "pf_session"

var (
	ErrSecretMissing = errors.New("auth: jwt secret not configured")
	ErrInvalidToken  = errors.New("auth: invalid session token")
)

// User is the authenticated principal resolved from a session token.
type User struct {
	ID    string
	Email string
	Name  string
}

func (u User) Authenticated() bool { return strings.TrimSpace(u.ID) != "" }

// Manager signs and verifies HS256 session tokens carried in a cookie or a
// bearer header.
type Manager struct {
	secret     []byte
	cookieName string
	secure     bool
}

func NewManager(cfg config.Config) (*Manager, error) {
	secret := strings.TrimSpace(cfg.AuthJWTSecret)
	if secret == "" {
		return nil, ErrSecretMissing
	}
	return &Manager{
		secret:     []byte(secret),
		cookieName: DefaultCookieName,
		secure:     cfg.AuthCookieSecure,
	}, nil
}

func (m *Manager) CookieName() string { return m.cookieName }

// Issue mints a session token for the user.
func (m *Manager) Issue(user User, ttl time.Duration) (string, error) {
	if !user.Authenticated() {
		return "", ErrInvalidToken
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"name":  user.Name,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify parses and validates a session token.
func (m *Manager) Verify(token string) (User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return User{}, ErrInvalidToken
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return User{}, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return User{}, ErrInvalidToken
	}

	user := User{
		ID:    claimString(claims, "sub"),
		Email: claimString(claims, "email"),
		Name:  claimString(claims, "name"),
	}
	if !user.Authenticated() {
		return User{}, ErrInvalidToken
	}
	return user, nil
}

// ReadToken extracts the session token from the cookie or the
// Authorization header.
func (m *Manager) ReadToken(c *gin.Context) (string, bool) {
	if token, err := c.Cookie(m.cookieName); err == nil && strings.TrimSpace(token) != "" {
		return token, true
	}
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if strings.HasPrefix(header, "Bearer ") {
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token != "" {
			return token, true
		}
	}
	return "", false
}

func (m *Manager) SetCookie(c *gin.Context, token string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookieName, token, maxAge, "/", "", m.secure, true)
}

func (m *Manager) ClearCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookieName, "", -1, "/", "", m.secure, true)
}

func claimString(claims jwt.MapClaims, key string) string {
	value, ok := claims[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}
