package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"datanest-backend/internal/market"
	"datanest-backend/internal/model"
	"datanest-backend/internal/store"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to temp files.
const multipartMemory = 32 << 20

// multipartOverhead is the request allowance on top of the file size limit
// for boundaries, part headers and the listing fields. The file itself is
// capped by the blob store.
const multipartOverhead = 1 << 20

func (s *Server) listDatasets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := s.svc.ListDatasets(r.Context(), store.DatasetFilter{
		Category: q.Get("category"),
		Format:   q.Get("format"),
		Search:   q.Get("search"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) getDataset(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.GetDataset(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, d)
}

func (s *Server) createDataset(w http.ResponseWriter, r *http.Request, user model.User) {
	if s.opts.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+multipartOverhead)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeStatus(w, r, http.StatusRequestEntityTooLarge, string(market.KindValidation), "dataset file too large")
			return
		}
		badRequest(w, r, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, hdr, err := r.FormFile(market.UploadField)
	if err != nil {
		badRequest(w, r, "dataset file is required")
		return
	}
	defer file.Close()

	nd, err := datasetForm(r)
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}

	d, err := s.svc.CreateDataset(r.Context(), user, nd, market.Upload{
		FileName: hdr.Filename,
		MimeType: hdr.Header.Get("Content-Type"),
		Body:     file,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, d)
}

// datasetForm reads the listing fields sent alongside the file. Tags are a
// JSON array.
func datasetForm(r *http.Request) (model.NewDataset, error) {
	nd := model.NewDataset{
		Title:       strings.TrimSpace(r.FormValue("title")),
		Description: strings.TrimSpace(r.FormValue("description")),
		Category:    r.FormValue("category"),
		Format:      r.FormValue("format"),
		DataType:    r.FormValue("dataType"),
		License:     r.FormValue("license"),
		Tags:        []string{},
	}
	price, err := decimal.NewFromString(strings.TrimSpace(r.FormValue("price")))
	if err != nil {
		return nd, errors.New("price must be a number")
	}
	nd.Price = price
	if raw := r.FormValue("tags"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &nd.Tags); err != nil {
			return nd, errors.New("tags must be a JSON array of strings")
		}
	}
	return nd, nil
}

func (s *Server) downloadDataset(w http.ResponseWriter, r *http.Request, user model.User) {
	dl, err := s.svc.DownloadDataset(r.Context(), user, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer dl.Body.Close()

	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": dl.FileName}))
	w.Header().Set("Content-Type", dl.MimeType)
	if dl.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(dl.Size, 10))
	}
	if _, err := io.Copy(w, dl.Body); err != nil {
		log.Warnw("download interrupted", "user", user.ID, "file", dl.FileName, "error", err)
	}
}

type availabilityBody struct {
	IsAvailable *bool `json:"isAvailable"`
}

func (s *Server) setAvailability(w http.ResponseWriter, r *http.Request, user model.User) {
	var body availabilityBody
	if err := decodeJSON(r, &body); err != nil || body.IsAvailable == nil {
		badRequest(w, r, "isAvailable is required")
		return
	}
	d, err := s.svc.SetDatasetAvailability(r.Context(), user, mux.Vars(r)["id"], *body.IsAvailable)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, d)
}

func (s *Server) deleteDataset(w http.ResponseWriter, r *http.Request, user model.User) {
	if err := s.svc.DeleteDataset(r.Context(), user, mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) myDatasets(w http.ResponseWriter, r *http.Request, user model.User) {
	out, err := s.svc.ListSellerDatasets(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, out)
}
