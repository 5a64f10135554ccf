package common

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"predex.com/pkg/logger"
	"predex.com/pkg/xerr"
)

// 定义http返回格式
type Response struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func Success(ctx *gin.Context, data interface{}) {
	ctx.JSON(http.StatusOK, Response{
		Code:    "ok",
		Message: http.StatusText(http.StatusOK),
		Data:    data,
	})
}

func Fail(c *gin.Context, httpStatus int, code xerr.Code, message string) {
	c.JSON(httpStatus, Response{
		Code:    string(code),
		Message: message,
		Data:    nil,
	})
}

// FailErr 把错误映射成对外的 code/message；未分类的错误不透出内部信息
func FailErr(c *gin.Context, err error) {
	var ce *xerr.CodeError
	if errors.As(err, &ce) {
		status := xerr.HTTPStatus(ce.Code)
		if status >= http.StatusInternalServerError {
			logger.Error(c, "http error",
				zap.String("request_id", RequestIDFromGin(c)),
				zap.String("path", c.Request.URL.Path),
				zap.Error(err),
			)
		}
		Fail(c, status, ce.Code, ce.Msg)
		return
	}
	logger.Error(c, "http internal error",
		zap.String("request_id", RequestIDFromGin(c)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	Fail(c, http.StatusInternalServerError, xerr.Internal, xerr.MapErrMsg(xerr.Internal))
}
