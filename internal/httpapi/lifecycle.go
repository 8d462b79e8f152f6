package httpapi

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"datanest-backend/internal/model"
	"datanest-backend/internal/store"
)

func (s *Server) listRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := s.svc.ListRequests(r.Context(), store.RequestFilter{
		Category: q.Get("category"),
		Status:   model.RequestStatus(q.Get("status")),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) getRequest(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.GetRequest(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) createRequest(w http.ResponseWriter, r *http.Request, user model.User) {
	var nr model.NewDatasetRequest
	if err := decodeJSON(r, &nr); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	out, err := s.svc.CreateDatasetRequest(r.Context(), user, nr)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, out)
}

func (s *Server) submitProposal(w http.ResponseWriter, r *http.Request, user model.User) {
	var np model.NewProposal
	if err := decodeJSON(r, &np); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	out, err := s.svc.SubmitProposal(r.Context(), user, np)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, out)
}

// byID adapts a service call keyed by the {id} path variable.
func byID[T any](call func(ctx context.Context, user model.User, id string) (T, error)) authedHandler {
	return func(w http.ResponseWriter, r *http.Request, user model.User) {
		out, err := call(r.Context(), user, mux.Vars(r)["id"])
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, out)
	}
}

func (s *Server) fulfillRequest(w http.ResponseWriter, r *http.Request, user model.User) {
	byID(s.svc.FulfillRequest)(w, r, user)
}

func (s *Server) cancelRequest(w http.ResponseWriter, r *http.Request, user model.User) {
	byID(s.svc.CancelRequest)(w, r, user)
}

func (s *Server) acceptProposal(w http.ResponseWriter, r *http.Request, user model.User) {
	byID(s.svc.AcceptProposal)(w, r, user)
}

func (s *Server) rejectProposal(w http.ResponseWriter, r *http.Request, user model.User) {
	byID(s.svc.RejectProposal)(w, r, user)
}

func (s *Server) myRequests(w http.ResponseWriter, r *http.Request, user model.User) {
	out, err := s.svc.ListBuyerRequests(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) myProposals(w http.ResponseWriter, r *http.Request, user model.User) {
	out, err := s.svc.ListSellerProposals(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, out)
}

type intentBody struct {
	DatasetID string `json:"datasetId"`
}

type paymentBody struct {
	PaymentIntentID string `json:"paymentIntentId"`
}

func (s *Server) createPaymentIntent(w http.ResponseWriter, r *http.Request, user model.User) {
	var body intentBody
	if err := decodeJSON(r, &body); err != nil || body.DatasetID == "" {
		badRequest(w, r, "datasetId is required")
		return
	}
	out, err := s.svc.CreatePaymentIntent(r.Context(), user, body.DatasetID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) confirmPayment(w http.ResponseWriter, r *http.Request, user model.User) {
	s.settlePayment(w, r, user, s.svc.ConfirmPayment)
}

func (s *Server) failPayment(w http.ResponseWriter, r *http.Request, user model.User) {
	s.settlePayment(w, r, user, s.svc.FailPayment)
}

func (s *Server) settlePayment(w http.ResponseWriter, r *http.Request, user model.User,
	settle func(ctx context.Context, buyer model.User, ref string) (model.Purchase, error)) {
	var body paymentBody
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	p, err := settle(r.Context(), user, body.PaymentIntentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

func (s *Server) myPurchases(w http.ResponseWriter, r *http.Request, user model.User) {
	out, err := s.svc.ListBuyerPurchases(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, out)
}
