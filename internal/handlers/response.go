package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/grodonkey/crowdcoach-backend/internal/apierr"
)

type APIError struct {
	Message       string `json:"message"`
	Code          string `json:"code,omitempty"`
	RequiresLogin bool   `json:"requires_login,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondAPIError maps a service error onto its HTTP classification. Quota
// rejections additionally carry requires_login so the client can hand the
// user to authentication without losing conversation state.
func RespondAPIError(c *gin.Context, err error) {
	apiErr := apierr.From(err)
	payload := APIError{
		Message: apiErr.Error(),
		Code:    apiErr.Code,
	}
	switch apiErr.Code {
	case "message_limit_reached", "draft_limit_reached":
		payload.RequiresLogin = true
	}
	c.JSON(apiErr.Status, ErrorEnvelope{Error: payload})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
