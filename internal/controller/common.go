package controller

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"ledger-api/internal/gateway"
	"ledger-api/internal/middleware"
	"ledger-api/internal/service"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusForErrorCode maps service-level business error codes onto HTTP
// statuses. Unknown codes fall through to 500 so a missing mapping shows up
// loudly instead of masquerading as a client error.
func statusForErrorCode(code string) int {
	switch code {
	case service.ErrCodeValidation:
		return http.StatusBadRequest
	case service.ErrCodeInsufficientFunds:
		return http.StatusBadRequest
	case service.ErrCodePermission:
		return http.StatusForbidden
	case service.ErrCodeStateConflict:
		return http.StatusConflict
	case service.ErrCodeNotFound:
		return http.StatusNotFound
	case service.ErrCodeGateway, service.ErrCodeGatewayUnknown:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondBusinessError(ctx *gin.Context, code, message string) {
	ctx.JSON(statusForErrorCode(code), ErrorResponse{
		Error:   code,
		Message: message,
	})
}

func respondInternalError(ctx *gin.Context, err error) {
	ctx.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   service.ErrCodeInternal,
		Message: err.Error(),
	})
}

// authedUserID pulls the user ID set by the auth middleware; a missing value
// means the route was wired without JWTAuth.
func authedUserID(ctx *gin.Context) (int64, bool) {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthenticated",
			Message: "Missing user identity",
		})
	}
	return userID, ok
}

var cpfPattern = regexp.MustCompile(`^\d{11}$|^\d{3}\.\d{3}\.\d{3}-\d{2}$`)

// RegisterValidations installs custom binding validators. Called once at
// startup before routes are registered.
func RegisterValidations() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	_ = v.RegisterValidation("pixkeytype", func(fl validator.FieldLevel) bool {
		return gateway.IsValidPixKeyType(fl.Field().String())
	})
	_ = v.RegisterValidation("cpfformat", func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		return value == "" || cpfPattern.MatchString(value)
	})
}
