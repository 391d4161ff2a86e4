package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/xraph/tablebill"
)

const (
	headerGuestName    = "X-Guest-Name"
	headerRestaurantID = "X-Restaurant-ID"
)

// Identity is the caller of a request.
type Identity struct {
	// ParticipantKey is the user ID for authenticated callers and the
	// guest name otherwise.
	ParticipantKey string
	DisplayName    string
	RestaurantID   string
	Authenticated  bool
}

// Claims is the bearer token payload.
type Claims struct {
	UserID       string `json:"user_id,omitempty"`
	Name         string `json:"name,omitempty"`
	RestaurantID string `json:"restaurant_id,omitempty"`
	jwt.RegisteredClaims
}

type ctxKey struct{}

// IdentityFrom returns the identity stored by the middleware.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	ident, ok := ctx.Value(ctxKey{}).(Identity)
	return ident, ok
}

func withIdentity(ctx context.Context, ident Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, ident)
}

// identityMiddleware resolves the caller. A bearer token that fails to
// verify is rejected; a request without one falls back to the guest header.
func (s *Server) identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident := Identity{
			ParticipantKey: strings.TrimSpace(r.Header.Get(headerGuestName)),
			RestaurantID:   strings.TrimSpace(r.Header.Get(headerRestaurantID)),
		}
		if ident.ParticipantKey == "" {
			// Browsers cannot set headers on a websocket upgrade.
			ident.ParticipantKey = strings.TrimSpace(r.URL.Query().Get("guest"))
		}
		ident.DisplayName = ident.ParticipantKey

		if raw, ok := bearerToken(r); ok {
			claims, err := s.parseToken(raw)
			if err != nil {
				s.logger.Debug("rejected bearer token", "error", err)
				writeError(w, fmt.Errorf("%w: invalid token", tablebill.ErrUnauthorized))
				return
			}
			ident.ParticipantKey = claims.UserID
			if ident.ParticipantKey == "" {
				ident.ParticipantKey = claims.Subject
			}
			if claims.Name != "" {
				ident.DisplayName = claims.Name
			} else if ident.DisplayName == "" {
				ident.DisplayName = ident.ParticipantKey
			}
			if claims.RestaurantID != "" {
				ident.RestaurantID = claims.RestaurantID
			}
			ident.Authenticated = true
		}

		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), ident)))
	})
}

func (s *Server) parseToken(raw string) (*Claims, error) {
	if len(s.jwtSecret) == 0 {
		return nil, fmt.Errorf("bearer tokens are not accepted")
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.UserID == "" && claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return claims, nil
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// IssueToken signs a token for userID. Intended for tests and local tools.
func IssueToken(secret, userID, restaurantID string) (string, error) {
	claims := Claims{
		UserID:       userID,
		RestaurantID: restaurantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: userID,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
