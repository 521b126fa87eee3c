package middleware

// Idempotency-Key handling for QR generation. The middleware only validates
// and annotates; the invoice service performs the actual replay.

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// HeaderIdempotencyKey is the request header clients use to make a
// generation call safe to retry.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderIdempotencyReplayed is set to "true" on responses served from an
// earlier request with the same key.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"
	ctxKeyMerchant   = "merchantID"
)

// ctxValue reads a typed value set on c; a wrong type reads as absent.
func ctxValue[T any](c *gin.Context, key string) (T, bool) {
	v, ok := c.Value(key).(T)
	return v, ok
}

// GetIdempotencyKey returns the validated Idempotency-Key, if any.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s, _ := ctxValue[string](c, ctxKeyIdemKey)
	return s, s != ""
}

// IsReplay reports whether a live invoice already exists for the request's
// (merchant, key).
func IsReplay(c *gin.Context) bool {
	b, _ := ctxValue[bool](c, ctxKeyIdemReplay)
	return b
}

// MerchantID returns the merchant resolved for this request, or "".
func MerchantID(c *gin.Context) string {
	s, _ := ctxValue[string](c, ctxKeyMerchant)
	return s
}

// ScopeFunc resolves the merchant an idempotency key belongs to.
type ScopeFunc func(c *gin.Context) string

// MerchantFromJSONBody reads merchant_id from a JSON request body. The body
// is cached on the context, so handlers must bind with ShouldBindBodyWith.
func MerchantFromJSONBody() ScopeFunc {
	return func(c *gin.Context) string {
		if c.Request.Method != http.MethodPost {
			return ""
		}
		var body struct {
			MerchantID string `json:"merchant_id"`
		}
		if err := c.ShouldBindBodyWith(&body, binding.JSON); err != nil {
			return ""
		}
		return strings.TrimSpace(body.MerchantID)
	}
}

// defaultKeyPattern admits the unreserved URI characters plus ':'.
var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// IdempotencyOptions configures IdempotencyValidator. Expiry is the
// lookup's concern.
type IdempotencyOptions struct {
	MaxLen  int            // default 200
	Pattern *regexp.Regexp // default defaultKeyPattern
	Scope   ScopeFunc      // nil disables the lookup
}

// IdempotencyLookup reports whether a live invoice exists for
// (merchantID, key) at now.
type IdempotencyLookup func(ctx context.Context, merchantID, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator rejects a malformed Idempotency-Key with 400 and
// otherwise records the key and merchant on the context. When lookup finds
// a live record the request is flagged as a replay, which also exempts it
// from rate limiting. Requests without the header pass untouched. A failing
// lookup is logged and treated as no replay; the service decides for real.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			abort(c, http.StatusBadRequest, "bad_idempotency_key", "invalid Idempotency-Key")
			return
		}
		c.Set(ctxKeyIdemKey, key)

		var merchant string
		if opts.Scope != nil {
			merchant = opts.Scope(c)
		}
		if merchant != "" {
			c.Set(ctxKeyMerchant, merchant)
		}
		if merchant == "" || lookup == nil {
			c.Next()
			return
		}

		exists, err := lookup(c.Request.Context(), merchant, key, time.Now().UTC())
		if err != nil {
			LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
		}
		if exists {
			c.Set(ctxKeyIdemReplay, true)
			c.Set(ctxKeyRateBypass, true)
		}
		c.Next()
	}
}
