package httpmw

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/hrescak/Draftboard-sub002/internal/log"
	"github.com/hrescak/Draftboard-sub002/internal/xerrors"
)

// Recover turns a handler panic into a logged 500. onPanic, if set, is
// called once per recovered panic (metrics). http.ErrAbortHandler is
// re-raised so net/http can abort the connection quietly.
func Recover(logger log.Logger, onPanic func()) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if e, ok := rec.(error); ok && errors.Is(e, http.ErrAbortHandler) {
					panic(rec)
				}

				var err error
				if e, ok := rec.(error); ok {
					err = xerrors.Wrap(e, "panic")
				} else {
					err = xerrors.Newf("panic: %v", rec)
				}
				if onPanic != nil {
					onPanic()
				}
				logger.With("method", r.Method, "path", r.URL.Path).
					Error(r.Context(), err, "httpserver panic recovered", "panic_type", fmt.Sprintf("%T", rec))

				w.Header().Set("Cache-Control", "no-store")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
