package middleware

import (
	"promptcron/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Error renders the last error attached to the context as a structured payload.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		be := errutil.From(last.Err)
		c.JSON(be.Code.HTTPStatus(), be.JSON())
	}
}
