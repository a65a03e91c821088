package httpgin

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ctxUserID = "user_id"
	ctxRole   = "role"

	roleAdmin = "admin"
)

// Auth resolves the caller. With a secret it requires an HS256 bearer token
// and reads the user from the "sub" claim and the role from "role". Without
// a secret it trusts the X-User-ID and X-User-Role headers, which is only
// meant for local runs and tests.
func Auth(secret string) gin.HandlerFunc {
	if secret == "" {
		return headerIdentity()
	}

	key := []byte(secret)

	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			unauthorized(c, "missing bearer token")
			return
		}

		tok, err := jwt.Parse(
			strings.TrimPrefix(h, "Bearer "),
			func(*jwt.Token) (any, error) { return key, nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		)
		if err != nil || !tok.Valid {
			unauthorized(c, "invalid token")
			return
		}

		claims, ok := tok.Claims.(jwt.MapClaims)
		if !ok {
			unauthorized(c, "invalid claims")
			return
		}

		userID, ok := claimUserID(claims["sub"])
		if !ok {
			unauthorized(c, "invalid subject")
			return
		}

		role, _ := claims["role"].(string)

		c.Set(ctxUserID, userID)
		c.Set(ctxRole, role)
		c.Next()
	}
}

func headerIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("X-User-ID")
		if raw == "" {
			unauthorized(c, "missing X-User-ID")
			return
		}

		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || userID <= 0 {
			unauthorized(c, "invalid X-User-ID")
			return
		}

		c.Set(ctxUserID, userID)
		c.Set(ctxRole, c.GetHeader("X-User-Role"))
		c.Next()
	}
}

// RequireAdmin must run after Auth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ctxRole) != roleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: "admin only"})
			return
		}
		c.Next()
	}
}

// claimUserID accepts both numeric and string subjects.
func claimUserID(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		if t <= 0 || t != float64(int64(t)) {
			return 0, false
		}
		return int64(t), true
	case string:
		id, err := strconv.ParseInt(t, 10, 64)
		if err != nil || id <= 0 {
			return 0, false
		}
		return id, true
	default:
		return 0, false
	}
}

func userID(c *gin.Context) int64 {
	return c.GetInt64(ctxUserID)
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: msg})
}
