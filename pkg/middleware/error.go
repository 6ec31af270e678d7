package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"studiopay/pkg/errutil"
)

// Error renders the last error recorded on the gin context as a JSON body
// with the HTTP status derived from its CoreStatus.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil {
			return
		}

		var be errutil.BaseError
		if errors.As(last.Err, &be) {
			c.JSON(be.Code.HTTPStatus(), be.JSON())
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    errutil.StatusInternal,
				"message": last.Error(),
			},
		})
	}
}
