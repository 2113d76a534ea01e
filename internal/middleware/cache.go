package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/rewear-api/pkg/middleware/requestid"
)

const (
	responseMetaKey = "response_meta"
	requestStartKey = "request_start"
	cacheHitKey     = "cache_hit"
	cacheHeader     = "X-Cache"
)

// WithResponseMeta initialises the per-request meta map handlers merge into
// the response envelope.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		meta := map[string]interface{}{}
		if id := requestid.Value(c); id != "" {
			meta["request_id"] = id
		}
		c.Set(requestStartKey, time.Now())
		c.Set(responseMetaKey, meta)
		c.Next()
	}
}

// SetCacheHit marks whether the payload came from the catalog cache.
func SetCacheHit(c *gin.Context, hit bool) {
	ensureMeta(c)[cacheHitKey] = hit
	if hit {
		c.Header(cacheHeader, "HIT")
		return
	}
	c.Header(cacheHeader, "MISS")
}

// ExtractMeta returns the metadata map stored on the context, stamped with
// the time spent so far.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	meta := ensureMeta(c)
	if start, ok := c.Get(requestStartKey); ok {
		if at, ok := start.(time.Time); ok {
			meta["processing_time_ms"] = time.Since(at).Milliseconds()
		}
	}
	return meta
}

func ensureMeta(c *gin.Context) map[string]interface{} {
	if meta, exists := c.Get(responseMetaKey); exists {
		if typed, ok := meta.(map[string]interface{}); ok {
			return typed
		}
	}
	newMeta := make(map[string]interface{})
	c.Set(responseMetaKey, newMeta)
	return newMeta
}
