package httpapi

import (
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"golang.org/x/xerrors"

	"datanest-backend/internal/market"
)

const maxJSONBody = 1 << 20

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

var kindStatus = map[market.Kind]int{
	market.KindNotFound:    http.StatusNotFound,
	market.KindForbidden:   http.StatusForbidden,
	market.KindConflict:    http.StatusConflict,
	market.KindValidation:  http.StatusBadRequest,
	market.KindUnavailable: http.StatusServiceUnavailable,
}

// writeJSON encodes v, gzip-compressed when the client accepts it.
func writeJSON(w http.ResponseWriter, r *http.Request, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if !acceptsGzip(r) {
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(v)
		return
	}

	w.Header().Set("Content-Encoding", "gzip")
	w.Header().Add("Vary", "Accept-Encoding")
	w.WriteHeader(code)
	gw := gzip.NewWriter(w)
	defer gw.Close()
	_ = json.NewEncoder(gw).Encode(v)
}

func acceptsGzip(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		if strings.EqualFold(strings.TrimSpace(strings.SplitN(enc, ";", 2)[0]), "gzip") {
			return true
		}
	}
	return false
}

func writeStatus(w http.ResponseWriter, r *http.Request, code int, kind, msg string) {
	writeJSON(w, r, code, errorBody{Error: msg, Kind: kind})
}

// writeError maps a service error onto its HTTP status.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := market.KindOf(err)
	code, ok := kindStatus[kind]
	if !ok {
		code = http.StatusInternalServerError
		log.Errorw("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeStatus(w, r, code, string(kind), market.Message(err))
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeStatus(w, r, http.StatusBadRequest, string(market.KindValidation), msg)
}

// decodeJSON reads a JSON body, gzip-encoded or not.
func decodeJSON(r *http.Request, v interface{}) error {
	var reader io.Reader = io.LimitReader(r.Body, maxJSONBody)
	if enc := r.Header.Get("Content-Encoding"); strings.EqualFold(enc, "gzip") {
		gr, err := gzip.NewReader(reader)
		if err != nil {
			return xerrors.Errorf("decompressing body: %w", err)
		}
		defer gr.Close()
		reader = gr
	}
	if err := json.NewDecoder(reader).Decode(v); err != nil {
		return xerrors.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
