package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/logger"
	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/logic"
	"github.com/gin-gonic/gin"
)

// SuccessResponse 成功响应
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse 错误响应
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Response{
		Success: false,
		Message: message,
		Data:    nil,
	})
}

// LogicErrorResponse 按业务错误类型返回对应状态码
func LogicErrorResponse(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, logic.ErrProjectNotFound),
		errors.Is(err, logic.ErrDonationNotFound),
		errors.Is(err, logic.ErrRoundNotFound),
		errors.Is(err, logic.ErrNoActiveRound):
		status = http.StatusNotFound
	case errors.Is(err, logic.ErrInvalidAmount),
		errors.Is(err, logic.ErrProjectNotActive),
		errors.Is(err, logic.ErrInvalidStatus),
		errors.Is(err, logic.ErrNoRoundSpecified),
		errors.Is(err, logic.ErrAmbiguousRound):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		logger.Error("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	ErrorResponse(c, status, err.Error())
}

// paramId 解析路径中的数字 ID
func paramId(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		ErrorResponse(c, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}
