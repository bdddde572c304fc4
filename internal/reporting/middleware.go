package reporting

import (
	"fmt"
	"net/http"
	"time"
)

// NewAddMetaMiddleware tags reported errors with the port and request info
func NewAddMetaMiddleware(port string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			userAgent := r.UserAgent()
			if userAgent == "" {
				userAgent = "<missing>"
			}

			ctx = AddTagsToContext(ctx, map[string]string{
				"port":       port,
				"userAgent":  userAgent,
				"methodPath": fmt.Sprintf("%s %s", r.Method, r.URL.Path),
			})

			if path := r.URL.Query().Get("path"); path != "" {
				ctx = AddExtrasToContext(ctx, map[string]string{
					"resourcePath": path,
				})
			}

			if userID := r.Header.Get("X-User-Id"); userID != "" {
				ctx = SetUserIDInContext(ctx, userID)
			}

			ctx = setStartedAtInContext(ctx, time.Now())

			next(w, r.WithContext(ctx))
		}
	}
}
