package intake

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	logx "hostelrelay/pkg/logx"
)

const requestIDHeader = "X-Request-ID"

type ctxKey int

const requestIDKey ctxKey = 0

// withRequestID tags every request with an id, keeping a caller-supplied
// one. The id is echoed in the response and set on the request header so
// the access log sees it.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		r.Header.Set(requestIDHeader, id)
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func requestID(r *http.Request) string {
	if id, ok := r.Context().Value(requestIDKey).(string); ok {
		return id
	}
	return r.Header.Get(requestIDHeader)
}

func (h *handler) auth(next http.Handler) http.Handler {
	tok := strings.TrimSpace(h.token)
	if tok == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const p = "Bearer "
		ah := r.Header.Get("Authorization")
		if strings.HasPrefix(ah, p) {
			got := strings.TrimSpace(strings.TrimPrefix(ah, p))
			if subtle.ConstantTimeCompare([]byte(got), []byte(tok)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
		}
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeJSON(w, http.StatusUnauthorized, Response{Message: "Unauthorized"})
	})
}

func (h *handler) rateLimit(next http.Handler) http.Handler {
	if h.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.limiter.Allow() {
			h.log.Warn("intake rate limited", logx.String("request_id", requestID(r)), logx.String("path", r.URL.Path))
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, Response{Message: "Too many requests. Please try again shortly."})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// recoveryLogger adapts logx to gorilla/handlers' RecoveryHandlerLogger.
type recoveryLogger struct{ log logx.Logger }

func (l recoveryLogger) Println(v ...interface{}) {
	l.log.Error("panic in intake handler", logx.String("panic", fmt.Sprint(v...)))
}
