package auth

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carried by ops API tokens. TenantIDs scopes which tenants' calls the
// operator may read; admins see everything.
type Claims struct {
	Email     string   `json:"email"`
	Name      string   `json:"name"`
	Role      string   `json:"role"`
	TenantIDs []string `json:"tenantIds"`
	jwt.RegisteredClaims
}

type contextKey string

const UserContextKey contextKey = "user"

// JWKSManager handles JWKS fetching and caching
type JWKSManager struct {
	jwks       keyfunc.Keyfunc
	jwksURL    string
	mu         sync.RWMutex
	lastUpdate time.Time
}

var (
	jwksManager *JWKSManager
	jwksOnce    sync.Once
)

// InitJWKS initializes the JWKS manager for token verification.
// Call this on server startup when OPS_JWKS_URL is configured.
func InitJWKS(jwksURL string) error {
	var initErr error
	jwksOnce.Do(func() {
		jwksManager = &JWKSManager{jwksURL: jwksURL}
		initErr = jwksManager.refresh()
	})
	return initErr
}

// refresh fetches the JWKS from the identity provider
func (m *JWKSManager) refresh() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	log.Printf("[Auth] Fetching JWKS from: %s", m.jwksURL)

	k, err := keyfunc.NewDefault([]string{m.jwksURL})
	if err != nil {
		return fmt.Errorf("failed to create keyfunc: %w", err)
	}

	m.jwks = k
	m.lastUpdate = time.Now()
	log.Printf("[Auth] JWKS loaded successfully")
	return nil
}

// getKeyfunc returns the JWT keyfunc for token verification
func (m *JWKSManager) getKeyfunc() jwt.Keyfunc {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.jwks == nil {
		return nil
	}
	return m.jwks.Keyfunc
}

// Middleware validates ops API bearer tokens
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// In development mode, you can bypass auth
		skipAuth := os.Getenv("SKIP_AUTH")
		if skipAuth == "true" {
			log.Println("[Auth] SKIP_AUTH enabled - bypassing authentication")
			ctx := context.WithValue(r.Context(), UserContextKey, &Claims{
				Email: "dev@voxline.local",
				Name:  "Dev User",
				Role:  "admin",
			})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		tokenString := extractToken(r)
		if tokenString == "" {
			log.Println("[Auth] Missing authorization token")
			http.Error(w, "Unauthorized: Missing token", http.StatusUnauthorized)
			return
		}

		claims, err := validateToken(tokenString)
		if err != nil {
			log.Printf("[Auth] Token validation failed: %v", err)
			http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractToken gets the token from the Authorization header or query
// parameter
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString != authHeader {
			return tokenString
		}
	}

	return r.URL.Query().Get("token")
}

// validateToken verifies the JWT. With OPS_JWKS_URL set, signatures are
// checked against the provider's JWKS; otherwise OPS_AUTH_SECRET is used as
// an HMAC key.
func validateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	var token *jwt.Token
	var err error

	if jwksURL := os.Getenv("OPS_JWKS_URL"); jwksURL != "" {
		if jwksManager == nil {
			if initErr := InitJWKS(jwksURL); initErr != nil {
				return nil, fmt.Errorf("failed to initialize JWKS: %w", initErr)
			}
		}
		kf := jwksManager.getKeyfunc()
		if kf == nil {
			return nil, fmt.Errorf("JWKS not available")
		}
		token, err = jwt.ParseWithClaims(tokenString, claims, kf,
			jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}))
	} else {
		secret := os.Getenv("OPS_AUTH_SECRET")
		if secret == "" {
			return nil, fmt.Errorf("OPS_AUTH_SECRET not configured")
		}
		token, err = jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
	}

	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Role == "" {
		claims.Role = "viewer"
	}

	return claims, nil
}

// GetUserFromContext retrieves user claims from request context
func GetUserFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*Claims)
	return claims, ok
}

// HasRole checks if user has specific role
func HasRole(claims *Claims, role string) bool {
	return claims.Role == role
}

// TenantAllowed reports whether the operator may read the tenant's data.
// Admins are unrestricted; everyone else needs the tenant in their claims.
func (c *Claims) TenantAllowed(tenantID string) bool {
	if c.Role == "admin" {
		return true
	}
	for _, id := range c.TenantIDs {
		if id == tenantID {
			return true
		}
	}
	return false
}
