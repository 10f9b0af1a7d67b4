package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mstudy/internal/middleware"
	"github.com/xxxsen/mstudy/internal/pkg/errcode"
	"github.com/xxxsen/mstudy/internal/pkg/response"
)

func getUserID(c *gin.Context) string {
	return c.GetString(middleware.ContextUserIDKey)
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	code, msg := errcode.FromError(err)
	logger := logutil.GetLogger(c.Request.Context()).With(
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("user_id", getUserID(c)),
		zap.Error(err),
	)
	if code == errcode.ErrInternal {
		logger.Error("request failed")
	} else {
		logger.Debug("request rejected", zap.Int("code", code))
	}
	response.Error(c, code, msg)
}

func invalidRequest(c *gin.Context, msg string) {
	response.Error(c, errcode.ErrInvalid, msg)
}
