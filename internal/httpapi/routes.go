package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	logging "github.com/ipfs/go-log/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"datanest-backend/internal/market"
	"datanest-backend/internal/model"
	"datanest-backend/internal/projections"
)

var log = logging.Logger("httpapi")

// Authenticator resolves a bearer token to its user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (model.User, error)
}

type Options struct {
	MaxUploadBytes int64
	RateLimit      float64
	RateBurst      int
}

// Server exposes the marketplace over HTTP. stats may be nil, in which
// case the leaderboard routes answer 503.
type Server struct {
	svc   *market.Service
	auth  Authenticator
	stats *projections.Stats
	opts  Options
}

func NewServer(svc *market.Service, authn Authenticator, stats *projections.Stats, opts Options) *Server {
	return &Server{svc: svc, auth: authn, stats: stats, opts: opts}
}

// Handler is the complete HTTP stack: routes, request metrics and the
// per-client rate limiter.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(instrument)
	s.RegisterRoutes(r)
	return NewRateLimiter(r, s.opts.RateLimit, s.opts.RateBurst)
}

// RegisterRoutes wires every route onto r.
func (s *Server) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/register", s.register).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", s.login).Methods(http.MethodPost)
	api.HandleFunc("/auth/me", s.authed(s.me)).Methods(http.MethodGet)

	api.HandleFunc("/datasets", s.listDatasets).Methods(http.MethodGet)
	api.HandleFunc("/datasets", s.authed(s.createDataset)).Methods(http.MethodPost)
	api.HandleFunc("/datasets/download/{id}", s.authed(s.downloadDataset)).Methods(http.MethodGet)
	api.HandleFunc("/datasets/{id}", s.getDataset).Methods(http.MethodGet)
	api.HandleFunc("/datasets/{id}", s.authed(s.deleteDataset)).Methods(http.MethodDelete)
	api.HandleFunc("/datasets/{id}/availability", s.authed(s.setAvailability)).Methods(http.MethodPut)

	api.HandleFunc("/requests", s.listRequests).Methods(http.MethodGet)
	api.HandleFunc("/requests", s.authed(s.createRequest)).Methods(http.MethodPost)
	api.HandleFunc("/requests/{id}", s.getRequest).Methods(http.MethodGet)
	api.HandleFunc("/requests/{id}/fulfill", s.authed(s.fulfillRequest)).Methods(http.MethodPut)
	api.HandleFunc("/requests/{id}/cancel", s.authed(s.cancelRequest)).Methods(http.MethodPut)

	api.HandleFunc("/proposals", s.authed(s.submitProposal)).Methods(http.MethodPost)
	api.HandleFunc("/proposals/{id}/accept", s.authed(s.acceptProposal)).Methods(http.MethodPut)
	api.HandleFunc("/proposals/{id}/reject", s.authed(s.rejectProposal)).Methods(http.MethodPut)

	api.HandleFunc("/create-payment-intent", s.authed(s.createPaymentIntent)).Methods(http.MethodPost)
	api.HandleFunc("/confirm-payment", s.authed(s.confirmPayment)).Methods(http.MethodPost)
	api.HandleFunc("/fail-payment", s.authed(s.failPayment)).Methods(http.MethodPost)

	api.HandleFunc("/user/purchases", s.authed(s.myPurchases)).Methods(http.MethodGet)
	api.HandleFunc("/user/datasets", s.authed(s.myDatasets)).Methods(http.MethodGet)
	api.HandleFunc("/user/requests", s.authed(s.myRequests)).Methods(http.MethodGet)
	api.HandleFunc("/user/proposals", s.authed(s.myProposals)).Methods(http.MethodGet)

	api.HandleFunc("/messages/conversations", s.authed(s.conversations)).Methods(http.MethodGet)
	api.HandleFunc("/messages/{otherUserId}", s.authed(s.conversation)).Methods(http.MethodGet)
	api.HandleFunc("/messages", s.authed(s.sendMessage)).Methods(http.MethodPost)
	api.HandleFunc("/messages/{id}/read", s.authed(s.markRead)).Methods(http.MethodPut)

	api.HandleFunc("/stats/top-datasets", s.topDatasets).Methods(http.MethodGet)
	api.HandleFunc("/stats/top-sellers", s.topSellers).Methods(http.MethodGet)
	api.HandleFunc("/stats/recent", s.recentActivity).Methods(http.MethodGet)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
