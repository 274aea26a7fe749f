package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	plerrors "speechbridge-server-go/internal/platform/errors"
)

// APIResponse is the envelope every endpoint returns.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
	Code    int         `json:"code"`
}

// RespondSuccess writes a success envelope.
func RespondSuccess(c *gin.Context, httpStatus int, data interface{}, message string) {
	if message == "" {
		message = "ok"
	}

	c.JSON(httpStatus, APIResponse{
		Success: true,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	})
}

// RespondError writes a failure envelope.
func RespondError(c *gin.Context, httpStatus int, message string, data interface{}) {
	c.JSON(httpStatus, APIResponse{
		Success: false,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	})
}

// RespondDomainError maps a classified error onto a status code and writes
// its descriptor. Raw error text never reaches the client.
func RespondDomainError(c *gin.Context, err error) {
	desc := plerrors.Describe(err)

	status := http.StatusInternalServerError
	switch {
	case plerrors.IsKind(err, plerrors.KindDecode):
		status = http.StatusUnprocessableEntity
	case plerrors.CodeOf(err) == plerrors.CodeUnsupportedLanguagePair,
		plerrors.CodeOf(err) == plerrors.CodeUnsupportedLanguage:
		status = http.StatusBadRequest
	case plerrors.CodeOf(err) == plerrors.CodeTimeout:
		status = http.StatusGatewayTimeout
	case plerrors.CodeOf(err) == plerrors.CodeModelUnavailable,
		plerrors.CodeOf(err) == plerrors.CodeEmbeddingFailed:
		status = http.StatusBadGateway
	case plerrors.IsKind(err, plerrors.KindStage):
		status = http.StatusBadRequest
	}

	RespondError(c, status, desc.Message, desc)
}
