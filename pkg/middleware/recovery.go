package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	apperrors "github.com/utafrali/SouvenirShop/pkg/errors"
)

type errorBody struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Recovery turns a handler panic into a 500 JSON body and an error log with
// the stack. http.ErrAbortHandler is re-raised so net/http can abort the
// connection.
func Recovery(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				writePanic(w, r, l, rec)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func writePanic(w http.ResponseWriter, r *http.Request, l *slog.Logger, rec any) {
	correlationID := w.Header().Get(CorrelationIDHeader)
	l.ErrorContext(r.Context(), "panic recovered",
		slog.Any("panic", rec),
		slog.String("stack", string(debug.Stack())),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("correlation_id", correlationID),
	)

	appErr := apperrors.Internal(fmt.Errorf("panic: %v", rec))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	body := errorBody{Code: appErr.Code, Message: appErr.Message, CorrelationID: correlationID}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		l.Error("failed to encode panic response", slog.String("error", err.Error()))
	}
}
