// Package api exposes the sale engine over HTTP. Authority keys travel in the
// X-Authority-Key header; request bodies carry the operation arguments.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"nodesale/internal/failure"
	"nodesale/internal/issuance"
	"nodesale/internal/payment"
	"nodesale/internal/sale"
)

const (
	AuthorityHeader   = "X-Authority-Key"
	defaultEventLimit = 100
	maxEventLimit     = 1000
	maxBodyBytes      = 1 << 20
)

// Config captures the dependencies required to construct the server.
type Config struct {
	Engine   *sale.Engine
	Registry *issuance.Registry
	Ledger   *payment.Ledger
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

type Server struct {
	engine   *sale.Engine
	registry *issuance.Registry
	ledger   *payment.Ledger
	gatherer prometheus.Gatherer
	logger   *zap.Logger

	router http.Handler
}

func New(cfg Config) *Server {
	s := &Server{
		engine:   cfg.Engine,
		registry: cfg.Registry,
		ledger:   cfg.Ledger,
		gatherer: cfg.Gatherer,
		logger:   cfg.Logger,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	s.router = s.buildRouter()
	return s
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(api chi.Router) {
		api.Post("/config", s.Initialize)
		api.Post("/config/rotate", s.RotateMainKey)

		api.Post("/phases", s.CreatePhase)
		api.Route("/phases/{phase}", func(phase chi.Router) {
			phase.Get("/", s.GetPhase)
			phase.Put("/", s.UpdatePhase)
			phase.Post("/keys", s.RotatePhaseKeys)
			phase.Get("/events", s.ListEvents)

			phase.Post("/tiers", s.CreateTier)
			phase.Get("/tiers", s.ListTiers)
			phase.Get("/tiers/{tier}", s.GetTier)
			phase.Put("/tiers/{tier}", s.UpdateTier)
			phase.Get("/tiers/{tier}/items", s.ListItems)

			phase.Post("/tokens", s.CreatePaymentToken)
			phase.Get("/tokens", s.ListPaymentTokens)
			phase.Get("/tokens/{mint}", s.GetPaymentToken)
			phase.Put("/tokens/{mint}", s.UpdatePaymentToken)

			phase.Post("/buy", s.Buy)
			phase.Post("/buy-with-token", s.BuyWithToken)
			phase.Post("/buy-direct", s.BuyDirect)
			phase.Post("/airdrop", s.Airdrop)
			phase.Post("/receipts", s.CreateOrderReceipt)
			phase.Post("/fill", s.FillOrder)

			phase.Get("/users/{user}", s.GetUser)
			phase.Get("/users/{user}/tiers/{tier}", s.GetUserTier)
			phase.Get("/users/{user}/orders", s.ListOrders)
			phase.Get("/users/{user}/orders/{order}", s.GetOrder)
		})

		api.Get("/accounts/{account}/balances/{asset}", s.GetBalance)
		api.Get("/accounts/{account}/transfers", s.ListTransfers)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type errorResponse struct {
	Code    failure.Code `json:"code"`
	Kind    failure.Kind `json:"kind"`
	Message string       `json:"message"`
}

func statusFor(kind failure.Kind) int {
	switch kind {
	case failure.KindAuthorization:
		return http.StatusForbidden
	case failure.KindConfiguration:
		return http.StatusBadRequest
	case failure.KindCapacity, failure.KindOrderState, failure.KindConflict:
		return http.StatusConflict
	case failure.KindPricing:
		return http.StatusUnprocessableEntity
	case failure.KindPayment:
		return http.StatusPaymentRequired
	case failure.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	f, ok := failure.As(err)
	if !ok {
		s.logger.Error("request failed",
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Code: "Internal", Message: "internal error"})
		return
	}
	writeJSON(w, statusFor(f.Kind), errorResponse{Code: f.Code, Kind: f.Kind, Message: f.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads the JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return failure.Wrap(failure.ErrInvalidArgument, "invalid payload: %v", err)
	}
	return nil
}

func authority(r *http.Request) string {
	return r.Header.Get(AuthorityHeader)
}

func tierParam(r *http.Request) (uint32, error) {
	raw := chi.URLParam(r, "tier")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, failure.Wrap(failure.ErrInvalidArgument, "tier id %q", raw)
	}
	return uint32(id), nil
}

func orderParam(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "order")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, failure.Wrap(failure.ErrInvalidArgument, "order id %q", raw)
	}
	return id, nil
}
