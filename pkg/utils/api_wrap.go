package utils

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

type APIResponse struct {
	Status  string      `json:"status"`
	Code    int         `json:"code"`
	Message string      `json:"message,omitempty"`
	TraceID string      `json:"trace_id,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func traceID(c *gin.Context) string {
	if v, ok := c.Get("trace_id"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func RespondSuccess(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusOK, APIResponse{
		Status:  "success",
		Code:    http.StatusOK,
		Message: message,
		TraceID: traceID(c),
		Data:    data,
	})
}

func RespondError(c *gin.Context, code int, message string) {
	c.JSON(code, APIResponse{
		Status:  "error",
		Code:    code,
		Message: message,
		TraceID: traceID(c),
	})
}

// HandleServiceError maps service-layer errors to HTTP responses. Messages
// describe the failure category only; internal identifiers never leak.
func HandleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrCardNotFound):
		RespondError(c, http.StatusNotFound, "Gift card not found")
	case errors.Is(err, ErrCardInactive):
		RespondError(c, http.StatusConflict, "Gift card is inactive")
	case errors.Is(err, ErrInvalidPin):
		RespondError(c, http.StatusForbidden, "Invalid card PIN")
	case errors.Is(err, ErrInsufficientBalance):
		RespondError(c, http.StatusUnprocessableEntity, "Insufficient gift card balance")
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrValidation):
		RespondError(c, http.StatusBadRequest, "Invalid request")
	case errors.Is(err, ErrGatewayDeclined):
		RespondError(c, http.StatusUnprocessableEntity, "Payment was declined")
	case errors.Is(err, ErrGatewayUnavailable):
		log.Printf("Gateway error: %v", err)
		RespondError(c, http.StatusBadGateway, "Payment provider is unavailable, please retry")
	case errors.Is(err, ErrSettlementFailed):
		RespondError(c, http.StatusUnprocessableEntity, "Settlement could not be completed")
	case errors.Is(err, ErrSignatureInvalid):
		RespondError(c, http.StatusUnauthorized, "Invalid signature")
	case errors.Is(err, ErrDatabaseError):
		log.Printf("Database error: %v", err)
		RespondError(c, http.StatusInternalServerError, "Internal server error")
	default:
		log.Printf("Unknown error: %v", err)
		RespondError(c, http.StatusInternalServerError, "Internal server error")
	}
}
