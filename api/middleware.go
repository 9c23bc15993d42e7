package api

import (
	"net/http"
	"strings"

	"github.com/fatali-fataliyev/finance_analytics/internal/contextutil"
	"github.com/fatali-fataliyev/finance_analytics/logging"
	"github.com/google/uuid"
	"github.com/rs/cors"
)

const TraceHeader = "X-Trace-ID"

var corsConf = cors.New(cors.Options{
	AllowedOrigins:   []string{"*"},
	AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
	AllowedHeaders:   []string{"Content-Type", UserHeader, TraceHeader},
	ExposedHeaders:   []string{TraceHeader},
	AllowCredentials: true,
})

// withTrace tags every request with a trace id and the caller's user id so
// storage and engine logs can be correlated.
func withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := strings.TrimSpace(r.Header.Get(TraceHeader))
		if traceID == "" {
			traceID = uuid.NewString()
		}
		w.Header().Set(TraceHeader, traceID)

		ctx := contextutil.WithTraceID(r.Context(), traceID)
		if userID := strings.TrimSpace(r.Header.Get(UserHeader)); userID != "" {
			ctx = contextutil.WithUserID(ctx, userID)
		}

		logging.Logger.Debugf("[TraceID=%s] | %s %s", traceID, r.Method, r.URL.Path)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
