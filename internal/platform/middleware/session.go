package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Fazzolix/matningsabo/pkg/platform/httputil"
)

// CookieName is the session cookie holding the signed identity token.
const CookieName = "sabo_session"

// Identity is the already-authenticated caller. Token verification against
// the external identity provider happens upstream; by the time a request
// carries this, the subject id and email are trusted facts.
type Identity struct {
	SubjectID   string
	Email       string
	DisplayName string
}

type contextKeyIdentity struct{}

// GetIdentity retrieves the authenticated caller from the context.
func GetIdentity(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKeyIdentity{}).(Identity)
	return id, ok
}

// WithIdentity injects a caller identity for tests that skip the session
// middleware.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKeyIdentity{}, id)
}

type sessionClaims struct {
	Email       string `json:"email"`
	DisplayName string `json:"name"`
	jwt.RegisteredClaims
}

// Sessions mints and validates the signed session token carried in the
// cookie.
type Sessions struct {
	key    []byte
	maxAge time.Duration
	secure bool
}

func NewSessions(signingKey string, maxAge time.Duration, secureCookies bool) *Sessions {
	return &Sessions{key: []byte(signingKey), maxAge: maxAge, secure: secureCookies}
}

// Issue writes a fresh session cookie for the identity.
func (s *Sessions) Issue(w http.ResponseWriter, id Identity) error {
	now := time.Now()
	claims := sessionClaims{
		Email:       strings.ToLower(strings.TrimSpace(id.Email)),
		DisplayName: id.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.SubjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.maxAge)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return fmt.Errorf("sign session token: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Parse validates a raw session token and returns the caller identity.
func (s *Sessions) Parse(raw string) (Identity, error) {
	var claims sessionClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.key, nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return Identity{}, fmt.Errorf("invalid session token")
	}
	return Identity{
		SubjectID:   claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.DisplayName,
	}, nil
}

// RequireAuth rejects requests without a valid session and stores the caller
// identity in the context.
func RequireAuth(sessions *Sessions, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(CookieName)
			if err != nil || cookie.Value == "" {
				httputil.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "Authentication required"})
				return
			}
			identity, err := sessions.Parse(cookie.Value)
			if err != nil {
				logger.Warn("session rejected",
					"request_id", GetRequestID(r.Context()),
					"path", r.URL.Path,
				)
				httputil.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "Session expired"})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}
