// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the static API key guard mounted on every versioned
// route. The presented key and the configured key are hashed before being
// compared in constant time so neither their contents nor their lengths leak
// through timing.
package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HeaderAPIKey carries the shared secret issued to integrators.
const HeaderAPIKey = "X-API-Key"

// APIKey rejects requests whose X-API-Key header does not equal expected with
// 401 and the standard error envelope.
func APIKey(expected string) gin.HandlerFunc {
	want := sha256.Sum256([]byte(expected))
	return func(c *gin.Context) {
		presented := c.GetHeader(HeaderAPIKey)
		got := sha256.Sum256([]byte(presented))
		if presented == "" || subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
			LoggerFrom(c).Warn().
				Bool("security_event", true).
				Bool("key_present", presented != "").
				Msg("api key rejected")
			abort(c, http.StatusUnauthorized, "unauthorized", "invalid API key")
			return
		}
		c.Next()
	}
}
