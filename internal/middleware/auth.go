package middleware

import (
	"errors"
	"net/http"

	"servicemarket/internal/db"
	"servicemarket/internal/services"

	"github.com/gin-gonic/gin"
)

// WalletAddressKey is the gin context key holding the authenticated wallet address.
const WalletAddressKey = "wallet_address"

// AuthRequired ensures the request carries a valid wallet token
func AuthRequired(auth services.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		address, err := auth.Authenticate(c.Request)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Set(WalletAddressKey, address)
		c.Next()
	}
}

// WalletAddress returns the address set by AuthRequired or the permission gate.
func WalletAddress(c *gin.Context) (string, bool) {
	v, ok := c.Get(WalletAddressKey)
	if !ok {
		return "", false
	}
	address, ok := v.(string)
	return address, ok && address != ""
}

// StatusFor maps core errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound), errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrConflict), errors.Is(err, db.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrOracleUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, services.ErrConfiguration):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
