package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/medicore/opd-api/pkg/errors"
)

type Response struct {
	Status  string      `json:"status"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(code errors.ErrorCode, message string) *Response {
	return &Response{
		Status:  "error",
		Code:    string(code),
		Message: message,
	}
}

// Error attaches the error to the gin context; the error middleware turns it
// into the response.
func Error(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
