package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/quiet-hours/pkg/httputil"
	"github.com/jwalitptl/quiet-hours/pkg/logger"
)

// ErrorHandler renders the last error a handler attached with c.Error.
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		for _, e := range c.Errors {
			log.Error(e.Err, "Request error",
				"request_id", c.GetString(ContextRequestID),
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)
		}

		httputil.RespondWithError(c, c.Errors.Last().Err)
	}
}
