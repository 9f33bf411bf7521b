package middleware

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	apperrors "github.com/3leaps/goconflux/internal/errors"
	"github.com/3leaps/goconflux/internal/observability"
)

// ErrorResponse is the JSON envelope every error path produces.
type ErrorResponse = apperrors.HTTPErrorResponse

// Recovery converts handler panics into a 500 with the standard envelope.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				observability.Logger.Error("handler panic",
					zap.String("path", r.URL.Path),
					zap.String("method", r.Method),
					zap.Any("panic", rec))

				apperrors.WriteError(w, r, http.StatusInternalServerError,
					apperrors.CodeInternalError,
					fmt.Sprintf("panic: %v", rec), nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ErrorHandler is an alias for Recovery kept for wiring clarity in routers.
func ErrorHandler(next http.Handler) http.Handler {
	return Recovery(next)
}
