package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bhadresh-123/phicore/internal/access"
	"github.com/bhadresh-123/phicore/internal/model"
)

const (
	HeaderXRequestID = "X-Request-ID"
	ContextRequestID = "request_id"
)

// RequestID assigns a correlation id to each request and attaches the
// request metadata the access gate copies into audit entries.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(HeaderXRequestID)
		if rid == "" {
			rid = uuid.New().String()
		}

		c.Set(ContextRequestID, rid)
		c.Header(HeaderXRequestID, rid)

		ctx := access.WithRequestMeta(c.Request.Context(), model.RequestMeta{
			Method:        c.Request.Method,
			Path:          c.Request.URL.Path,
			CorrelationID: rid,
			ClientIP:      c.ClientIP(),
		})
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
