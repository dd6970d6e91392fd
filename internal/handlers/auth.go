package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest represents the login request body
type LoginRequest struct {
	KioskID string `json:"kioskId" binding:"required"`
	Secret  string `json:"secret" binding:"required"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	Token   string `json:"token"`
	KioskID string `json:"kioskId"`
}

// JWTClaims represents the claims in the JWT token
type JWTClaims struct {
	KioskID string `json:"kiosk_id"`
	jwt.RegisteredClaims
}

// Login authenticates a kiosk device and hands it a JWT for the call API.
// Kiosks share the provisioning secret configured at deploy time.
func Login(jwtSecret, provisionSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body",
			})
			return
		}

		if req.Secret != provisionSecret {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid provisioning secret",
			})
			return
		}

		claims := JWTClaims{
			KioskID: req.KioskID,
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
				IssuedAt:  jwt.NewNumericDate(time.Now()),
				NotBefore: jwt.NewNumericDate(time.Now()),
			},
		}

		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		tokenString, err := token.SignedString([]byte(jwtSecret))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to generate token",
			})
			return
		}

		c.JSON(http.StatusOK, LoginResponse{
			Token:   tokenString,
			KioskID: req.KioskID,
		})
	}
}
