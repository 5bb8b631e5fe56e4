package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// SecurityConfig controls the headers set on every response.
type SecurityConfig struct {
	// HSTSMaxAge enables Strict-Transport-Security when positive.
	HSTSMaxAge int
}

// SecurityHeaders marks responses as non-cacheable and non-embeddable.
// Candidate lists carry names and phone numbers, so no intermediary may
// keep a copy.
func SecurityHeaders(config SecurityConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if config.HSTSMaxAge > 0 {
			c.Header("Strict-Transport-Security", fmt.Sprintf("max-age=%d; includeSubDomains", config.HSTSMaxAge))
		}
		c.Header("Cache-Control", "no-store")
		c.Header("Pragma", "no-cache")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Next()
	}
}
