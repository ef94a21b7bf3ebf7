package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

// SubjectKey is the gin context key holding the authenticated caller
const SubjectKey = "subject"

// AuthMiddleware validates access tokens issued by the user-service. Tokens are HMAC signed
// and must carry type "access".
func AuthMiddleware(secret string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get the Authorization header
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		// Check if it's a Bearer token
		headerParts := strings.Split(authHeader, " ")
		if len(headerParts) != 2 || headerParts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization format"})
			c.Abort()
			return
		}

		subject, err := ValidateToken(headerParts[1], secret)
		if err != nil {
			logger.Debug("token validation failed", zap.Error(err))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(SubjectKey, subject)
		c.Next()
	}
}

// ValidateToken parses an access token and returns its subject
func ValidateToken(tokenString, secret string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}

	tokenType, ok := claims["type"].(string)
	if !ok || tokenType != "access" {
		return "", errors.New("invalid token type")
	}

	// user-service issues numeric subjects
	switch sub := claims["sub"].(type) {
	case float64:
		return fmt.Sprintf("%d", int64(sub)), nil
	case string:
		if sub != "" {
			return sub, nil
		}
	}
	return "", errors.New("invalid subject in token")
}

// ServiceAuthMiddleware authenticates service-to-service requests by shared key
func ServiceAuthMiddleware(expectedKey string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		serviceKey := c.GetHeader("X-Service-Key")
		if serviceKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Service authentication required"})
			c.Abort()
			return
		}

		if serviceKey != expectedKey {
			logger.Warn("Invalid service key received", zap.String("client_ip", c.ClientIP()))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid service key"})
			c.Abort()
			return
		}

		c.Set(SubjectKey, "service")
		c.Next()
	}
}

// EitherAuth accepts a service key when present and falls back to a user token
func EitherAuth(secret, serviceKey string, logger *zap.Logger) gin.HandlerFunc {
	user := AuthMiddleware(secret, logger)
	service := ServiceAuthMiddleware(serviceKey, logger)
	return func(c *gin.Context) {
		if serviceKey != "" && c.GetHeader("X-Service-Key") != "" {
			service(c)
			return
		}
		user(c)
	}
}
