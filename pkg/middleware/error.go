package middleware

import (
	"errors"
	"net/http"

	"cashback-ranking/pkg/errutil"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error renders the last handler error as a BaseError body.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		var be errutil.BaseError
		if errors.As(last.Err, &be) {
			c.JSON(be.Code.HTTPStatus(), be.JSON())
			return
		}

		zap.L().Error("[HTTP] unhandled error", zap.String("path", c.FullPath()), zap.Error(last.Err))
		c.JSON(http.StatusInternalServerError, errutil.BaseError{
			Code:    errutil.StatusInternal,
			Message: "internal error",
		}.JSON())
	}
}
