package intake

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"hostelrelay/internal/relay"
	logx "hostelrelay/pkg/logx"
)

const maxBodyBytes = 64 << 10

// HandlerConfig controls routing middleware.
type HandlerConfig struct {
	// Token, when set, is required as "Authorization: Bearer <token>" on /api routes.
	Token string
	// RatePerSec <= 0 disables rate limiting.
	RatePerSec float64
	Burst      int
	// AllowedOrigins enables CORS for these origins ("*" for any).
	AllowedOrigins []string
}

type handler struct {
	n       Notifier
	log     logx.Logger
	token   string
	limiter *rate.Limiter
}

// NewHandler builds the intake router:
//
//	GET  /healthz
//	POST /api/notify/booking
//	POST /api/notify/contact
//	POST /api/notify/test
func NewHandler(cfg HandlerConfig, n Notifier, log logx.Logger) http.Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	h := &handler{n: n, log: log, token: cfg.Token}
	if cfg.RatePerSec > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, Response{Message: "Not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, Response{Message: "Method not allowed"})
	})

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)

	api := r.PathPrefix("/api/notify").Subrouter()
	api.Use(h.auth, h.rateLimit)
	api.HandleFunc("/booking", h.booking).Methods(http.MethodPost)
	api.HandleFunc("/contact", h.contact).Methods(http.MethodPost)
	api.HandleFunc("/test", h.test).Methods(http.MethodPost)

	var out http.Handler = r
	if len(cfg.AllowedOrigins) > 0 {
		out = handlers.CORS(
			handlers.AllowedOrigins(cfg.AllowedOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Content-Type", "Authorization", requestIDHeader}),
			handlers.ExposedHeaders([]string{requestIDHeader}),
		)(out)
	}
	out = handlers.CustomLoggingHandler(io.Discard, out, h.accessLog)
	out = withRequestID(out)
	out = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{log: log}),
		handlers.PrintRecoveryStack(false),
	)(out)
	return out
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "ok"})
}

func (h *handler) booking(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if !h.decode(w, r, &req) {
		return
	}
	b := req.toBooking()
	res := h.n.NotifyBooking(r.Context(), b)
	h.respond(w, r, res, "Booking notification sent", b.BookingID)
}

func (h *handler) contact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if !h.decode(w, r, &req) {
		return
	}
	res := h.n.NotifyContact(r.Context(), req.toContact())
	h.respond(w, r, res, "Contact notification sent", "")
}

func (h *handler) test(w http.ResponseWriter, r *http.Request) {
	res := h.n.TestConnection(r.Context())
	h.respond(w, r, res, "Test message sent", "")
}

func (h *handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		h.log.Debug("invalid intake body", logx.String("request_id", requestID(r)), logx.Err(err))
		writeJSON(w, status, Response{
			Message: "Invalid request",
			Errors:  map[string]string{"body": err.Error()},
		})
		return false
	}
	return true
}

// respond maps a relay outcome onto the envelope. A failed delivery is a
// 502: the submission itself is fine, the messaging service is not.
func (h *handler) respond(w http.ResponseWriter, r *http.Request, res relay.Result, okMsg, bookingID string) {
	if res.OK {
		writeJSON(w, http.StatusOK, Response{Success: true, Message: okMsg, BookingID: bookingID})
		return
	}
	h.log.Warn("notification not delivered",
		logx.String("request_id", requestID(r)),
		logx.String("path", r.URL.Path),
		logx.String("reason", res.Reason),
	)
	writeJSON(w, http.StatusBadGateway, Response{Message: res.Reason, BookingID: bookingID})
}

func (h *handler) accessLog(_ io.Writer, p handlers.LogFormatterParams) {
	h.log.Debug("intake request",
		logx.String("request_id", p.Request.Header.Get(requestIDHeader)),
		logx.String("method", p.Request.Method),
		logx.String("path", p.URL.Path),
		logx.Int("status", p.StatusCode),
		logx.Int("bytes", p.Size),
		logx.Duration("took", time.Since(p.TimeStamp)),
	)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
