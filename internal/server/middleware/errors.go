package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	apperrors "github.com/pagewire/pagewire/internal/errors"
	"github.com/pagewire/pagewire/internal/metrics"
	"github.com/pagewire/pagewire/internal/observability"
)

// Recovery turns a handler panic into a 500 error object and counts it.
func Recovery(m *metrics.Server) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				recovered := recover()
				if recovered == nil {
					return
				}
				if recovered == http.ErrAbortHandler {
					panic(recovered)
				}

				requestID := GetRequestID(r.Context())
				if m != nil {
					m.PanicsTotal.Inc()
				}
				if observability.ServerLogger != nil {
					observability.ServerLogger.Error("handler panic",
						zap.String("request_id", requestID),
						zap.String("path", r.URL.Path),
						zap.String("panic", fmt.Sprint(recovered)),
						zap.ByteString("stack", debug.Stack()),
					)
				}

				envelope := apperrors.NewInternalError(fmt.Sprintf("panic: %v", recovered))
				apperrors.RespondWithEnvelope(w, requestID, envelope)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
