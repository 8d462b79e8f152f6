package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"datanest-backend/internal/market"
	"datanest-backend/internal/model"
	"datanest-backend/internal/projections"
)

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var nu model.NewUser
	if err := decodeJSON(r, &nu); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	sess, err := s.svc.Register(r.Context(), nu)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, sess)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	sess, err := s.svc.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sess)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request, user model.User) {
	u, err := s.svc.Me(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, u)
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request, user model.User) {
	var nm model.NewMessage
	if err := decodeJSON(r, &nm); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	m, err := s.svc.SendMessage(r.Context(), user, nm)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, m)
}

func (s *Server) conversations(w http.ResponseWriter, r *http.Request, user model.User) {
	out, err := s.svc.Conversations(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) conversation(w http.ResponseWriter, r *http.Request, user model.User) {
	out, err := s.svc.Conversation(r.Context(), user, mux.Vars(r)["otherUserId"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request, user model.User) {
	byID(s.svc.MarkMessageRead)(w, r, user)
}

func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return 10
	}
	return n
}

func (s *Server) statsEnabled(w http.ResponseWriter, r *http.Request) bool {
	if s.stats == nil {
		writeStatus(w, r, http.StatusServiceUnavailable, string(market.KindUnavailable), "stats are not enabled")
		return false
	}
	return true
}

// topDatasets ranks datasets by downloads, or by sales with ?by=sales.
func (s *Server) topDatasets(w http.ResponseWriter, r *http.Request) {
	if !s.statsEnabled(w, r) {
		return
	}
	board := projections.BoardDatasetDownloads
	switch r.URL.Query().Get("by") {
	case "", "downloads":
	case "sales":
		board = projections.BoardDatasetSales
	default:
		badRequest(w, r, "by must be downloads or sales")
		return
	}
	s.writeBoard(w, r, board)
}

func (s *Server) topSellers(w http.ResponseWriter, r *http.Request) {
	if !s.statsEnabled(w, r) {
		return
	}
	s.writeBoard(w, r, projections.BoardSellerEarnings)
}

func (s *Server) writeBoard(w http.ResponseWriter, r *http.Request, board string) {
	out, err := s.stats.Top(r.Context(), board, limitParam(r))
	if err != nil {
		log.Warnw("reading leaderboard", "board", board, "error", err)
		writeStatus(w, r, http.StatusServiceUnavailable, string(market.KindUnavailable), "stats unavailable")
		return
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) recentActivity(w http.ResponseWriter, r *http.Request) {
	if !s.statsEnabled(w, r) {
		return
	}
	out, err := s.stats.Recent(r.Context(), limitParam(r))
	if err != nil {
		log.Warnw("reading activity feed", "error", err)
		writeStatus(w, r, http.StatusServiceUnavailable, string(market.KindUnavailable), "stats unavailable")
		return
	}
	writeJSON(w, r, http.StatusOK, out)
}
