package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Response represents a standardized API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents an error response
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes
const (
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeBadRequest        = "BAD_REQUEST"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeValidationFailed  = "VALIDATION_FAILED"
	ErrCodeDuplicateResource = "DUPLICATE_RESOURCE"
	ErrCodeGuardRejected     = "GUARD_REJECTED"
	ErrCodeMissingDependency = "MISSING_DEPENDENCY"
)

// Error-kind markers. Domain packages wrap their sentinel errors around one
// of these so Handle can map them to HTTP codes without importing the
// domain packages.
var (
	// ErrValidation marks synchronously rejected bad input
	ErrValidation = errors.New("validation error")
	// ErrUnauthorized marks missing or invalid credentials
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden marks authenticated but disallowed calls
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound marks lookups of absent resources
	ErrNotFound = errors.New("not found")
	// ErrConflict marks duplicate-resource rejections
	ErrConflict = errors.New("conflict")
	// ErrGuard marks invariant rejections: ratio breaches,
	// unhealthy-position rules, supply guards
	ErrGuard = errors.New("invariant guard rejected operation")
	// ErrDependency marks missing resolver entries and stale caches
	ErrDependency = errors.New("missing dependency")
)

// kindError attaches an error-kind marker without changing the message
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

// Kind builds a sentinel error carrying one of the error-kind markers.
// errors.Is matches both the returned sentinel and the marker.
func Kind(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// Handle processes the error and returns appropriate response
func Handle(c *gin.Context, data interface{}, err error) {
	if err == nil {
		Success(c, data)
		return
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, ErrNotFound):
		NotFound(c, err.Error())
	case errors.Is(err, gorm.ErrDuplicatedKey), errors.Is(err, ErrConflict):
		Conflict(c, err.Error())
	case errors.Is(err, ErrValidation):
		BadRequest(c, err.Error())
	case errors.Is(err, ErrUnauthorized):
		Unauthorized(c, err.Error())
	case errors.Is(err, ErrForbidden):
		Forbidden(c, err.Error())
	case errors.Is(err, ErrGuard):
		GuardRejected(c, err.Error())
	case errors.Is(err, ErrDependency):
		MissingDependency(c, err.Error())
	default:
		InternalError(c, "An unexpected error occurred")
	}
}

// Success sends a successful response
func Success(c *gin.Context, data interface{}) {
	status := http.StatusOK
	if c.Request.Method == "POST" {
		status = http.StatusCreated
	}

	c.JSON(status, Response{
		Success: true,
		Data:    data,
	})
}

// NotFound sends a 404 response
func NotFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, Response{
		Success: false,
		Error: &Error{
			Code:    ErrCodeNotFound,
			Message: message,
		},
	})
}

// BadRequest sends a 400 response
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error: &Error{
			Code:    ErrCodeBadRequest,
			Message: message,
		},
	})
}

// Unauthorized sends a 401 response
func Unauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, Response{
		Success: false,
		Error: &Error{
			Code:    ErrCodeUnauthorized,
			Message: message,
		},
	})
}

// Forbidden sends a 403 response
func Forbidden(c *gin.Context, message string) {
	c.JSON(http.StatusForbidden, Response{
		Success: false,
		Error: &Error{
			Code:    ErrCodeForbidden,
			Message: message,
		},
	})
}

// InternalError sends a 500 response
func InternalError(c *gin.Context, message string) {
	c.JSON(http.StatusInternalServerError, Response{
		Success: false,
		Error: &Error{
			Code:    ErrCodeInternalError,
			Message: message,
		},
	})
}

// Conflict sends a 409 response
func Conflict(c *gin.Context, message string) {
	c.JSON(http.StatusConflict, Response{
		Success: false,
		Error: &Error{
			Code:    ErrCodeDuplicateResource,
			Message: message,
		},
	})
}

// GuardRejected sends a 422 response for invariant-guard rejections
func GuardRejected(c *gin.Context, message string) {
	c.JSON(http.StatusUnprocessableEntity, Response{
		Success: false,
		Error: &Error{
			Code:    ErrCodeGuardRejected,
			Message: message,
		},
	})
}

// MissingDependency sends a 503 response for unresolved module dependencies
func MissingDependency(c *gin.Context, message string) {
	c.JSON(http.StatusServiceUnavailable, Response{
		Success: false,
		Error: &Error{
			Code:    ErrCodeMissingDependency,
			Message: message,
		},
	})
}
