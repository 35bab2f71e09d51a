package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/response"
)

const (
	UserIDHeader   = "X-User-ID"
	UserRoleHeader = "X-User-Role"

	ContextKeyUserID = "user_id"
	ContextKeyRole   = "role"

	RoleStandard  = "standard"
	RoleOrganizer = "organizer"
	RoleAdmin     = "admin"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// AuthConfig configures identity extraction
type AuthConfig struct {
	// JWTSecret verifies HS256 access tokens issued by the identity service
	JWTSecret string
	Issuer    string
	// TrustGatewayHeaders accepts X-User-ID / X-User-Role set by an upstream gateway
	TrustGatewayHeaders bool
}

// Claims are the access token claims this service relies on
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Auth authenticates the caller and stores user_id and role in the gin context
func Auth(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.TrustGatewayHeaders {
			if userID := c.GetHeader(UserIDHeader); userID != "" {
				setIdentity(c, userID, c.GetHeader(UserRoleHeader))
				c.Next()
				return
			}
		}

		claims, err := ParseToken(c.GetHeader("Authorization"), cfg)
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
			return
		}

		setIdentity(c, claims.UserID, claims.Role)
		c.Next()
	}
}

// ParseToken verifies a "Bearer <jwt>" header value
func ParseToken(header string, cfg AuthConfig) (*Claims, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(t *jwt.Token) (any, error) {
		return []byte(cfg.JWTSecret), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, jwt.ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// RequireRole rejects callers whose role is not in roles
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := GetRole(c)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		response.Abort(c, http.StatusForbidden, "FORBIDDEN", "insufficient role")
	}
}

func setIdentity(c *gin.Context, userID, role string) {
	switch role {
	case RoleOrganizer, RoleAdmin:
	default:
		role = RoleStandard
	}
	c.Set(ContextKeyUserID, userID)
	c.Set(ContextKeyRole, role)
}

// GetUserID returns the authenticated user id
func GetUserID(c *gin.Context) (string, bool) {
	id := c.GetString(ContextKeyUserID)
	return id, id != ""
}

// GetRole returns the authenticated role, standard when unset
func GetRole(c *gin.Context) string {
	if role := c.GetString(ContextKeyRole); role != "" {
		return role
	}
	return RoleStandard
}
