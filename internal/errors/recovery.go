package errors

import (
	"net/http"
	"strings"

	"github.com/copyleftdev/nlpsolver/internal/logging"
)

// RecoveryMiddleware returns a middleware that turns a panicking handler into
// a 500 response and an Error-level log entry with the panic stack.
// http.ErrAbortHandler is re-panicked so net/http can abort the connection.
func RecoveryMiddleware(logger *logging.Logger) func(http.Handler) http.Handler {
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

				err := FromPanic(rec).WithComponent("http")
				logger.WithError(err).Error("Recovered from panic", map[string]interface{}{
					"method": r.Method,
					"path":   r.URL.Path,
					"query":  r.URL.RawQuery,
					"stack":  strings.Join(err.StackTrace(), "\n"),
				})

				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
