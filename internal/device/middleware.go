package device

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

const contextKey = "device"

// KeyMiddleware authenticates POS terminals by their X-Device-Key header.
func KeyMiddleware(repo Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-Device-Key")
		if key == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "X-Device-Key header required"})
			c.Abort()
			return
		}

		d, err := repo.GetByAPIKey(c.Request.Context(), key)
		if err != nil {
			if errors.Is(err, ErrDeviceNotFound) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown device key"})
			} else {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to authenticate device"})
			}
			c.Abort()
			return
		}

		if d.Status != StatusActive {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "device is disabled"})
			c.Abort()
			return
		}

		c.Set(contextKey, d)
		c.Next()
	}
}

func FromContext(c *gin.Context) (*Device, bool) {
	v, exists := c.Get(contextKey)
	if !exists {
		return nil, false
	}
	d, ok := v.(*Device)
	return d, ok
}
