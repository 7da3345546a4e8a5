package middleware

import (
	"net/http"
	"runtime/debug"

	"amza-pricing-api/pkg/apierror"

	"github.com/sirupsen/logrus"
)

// Recovery is a middleware that recovers from panics.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logrus.WithFields(logrus.Fields{
					"request_id": GetRequestID(r.Context()),
					"panic":      err,
					"stack":      string(debug.Stack()),
				}).Error("panic recovered")

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				w.Write(apierror.InternalError("internal server error").ToJSON())
			}
		}()

		next.ServeHTTP(w, r)
	})
}
