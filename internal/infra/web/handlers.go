package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"slideshow-batch/internal/domain"
	"slideshow-batch/internal/domain/model"
	"slideshow-batch/internal/usecase"
)

// linksText accepts either a single string of links or a JSON array of them.
type linksText string

func (l *linksText) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '[' {
		var arr []string
		if err := json.Unmarshal(b, &arr); err != nil {
			return err
		}
		*l = linksText(strings.Join(arr, "\n"))
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*l = linksText(s)
	return nil
}

type submitRequest struct {
	Links           linksText `json:"links"`
	PhotoVariations int       `json:"photo_variations"`
	TextVariations  int       `json:"text_variations"`

	PhotoPaths   []string `json:"photo_paths"`
	Descriptions []string `json:"descriptions"`

	ProductPhotoPath   string `json:"product_photo_path"`
	ProductDescription string `json:"product_description"`
}

type batchSummary struct {
	ID             string    `json:"batch_id"`
	Status         string    `json:"status"`
	TotalLinks     int       `json:"total_links"`
	CompletedLinks int       `json:"completed_links"`
	FailedLinks    int       `json:"failed_links"`
	Pass           int       `json:"pass"`
	FolderName     string    `json:"folder_name"`
	DriveFolderURL string    `json:"drive_folder_url,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type linkDetail struct {
	ID             string `json:"link_id"`
	Index          int    `json:"index"`
	URL            string `json:"url"`
	Status         string `json:"status"`
	ErrorMessage   string `json:"error_message,omitempty"`
	DriveFolderURL string `json:"drive_folder_url,omitempty"`
}

func toBatchSummary(b *model.Batch) batchSummary {
	return batchSummary{
		ID:             b.ID,
		Status:         string(b.Status),
		TotalLinks:     b.TotalLinks,
		CompletedLinks: b.CompletedLinks,
		FailedLinks:    b.FailedLinks,
		Pass:           b.Pass,
		FolderName:     b.FolderName,
		DriveFolderURL: b.DriveFolderURL,
		ErrorMessage:   b.ErrorMessage,
		CreatedAt:      b.CreatedAt,
	}
}

func toLinkDetail(l *model.Link) linkDetail {
	return linkDetail{
		ID:             l.ID,
		Index:          l.LinkIndex,
		URL:            l.LinkURL,
		Status:         string(l.Status),
		ErrorMessage:   l.ErrorMessage,
		DriveFolderURL: l.DriveFolderURL,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain sentinels onto HTTP statuses. Unknown errors become
// opaque 500s; the detail stays in the logs.
func writeError(w http.ResponseWriter, err error, detail any) {
	var status int
	switch {
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrNoFailedLinks):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrBatchTerminal), errors.Is(err, domain.ErrBatchNotTerminal),
		errors.Is(err, domain.ErrAlreadyExists), errors.Is(err, domain.ErrLockBusy):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrTooManyBatches):
		status = http.StatusTooManyRequests
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
		return
	}
	body := map[string]any{"error": err.Error()}
	if detail != nil {
		body["detail"] = detail
	}
	writeJSON(w, status, body)
}

func (s *Server) submitHandler(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := s.batches.Submit(r.Context(), usecase.SubmitInput{
		LinksText:          string(req.Links),
		PhotoVariations:    req.PhotoVariations,
		TextVariations:     req.TextVariations,
		PhotoPaths:         req.PhotoPaths,
		Descriptions:       req.Descriptions,
		DefaultPhotoPath:   req.ProductPhotoPath,
		DefaultDescription: req.ProductDescription,
	})
	if err != nil {
		var detail any
		if result != nil && len(result.Invalid) > 0 {
			detail = result.Invalid
		}
		writeError(w, err, detail)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) validateHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Links linksText `json:"links"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	valid, invalid := s.batches.Validate(string(req.Links))
	writeJSON(w, http.StatusOK, map[string]any{
		"valid_count":   len(valid),
		"valid_links":   valid,
		"invalid_links": invalid,
	})
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	snap, err := s.progress.Snapshot(r.Context(), batchID)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) linksHandler(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	links, err := s.batches.Links(r.Context(), batchID)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	out := make([]linkDetail, 0, len(links))
	for _, l := range links {
		out = append(out, toLinkDetail(l))
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

func (s *Server) cancelHandler(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	if err := s.batches.Cancel(r.Context(), batchID); err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batch_id": batchID, "cancelled": true})
}

func (s *Server) retryHandler(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	passID, err := s.batches.RetryFailed(r.Context(), batchID)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batch_id": batchID, "pass_id": passID})
}

func (s *Server) listHandler(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	batches, err := s.batches.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	out := make([]batchSummary, 0, len(batches))
	for _, b := range batches {
		out = append(out, toBatchSummary(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !s.auth.CheckPassword(req.Password) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	token, err := s.auth.Mint(w)
	if err != nil {
		s.log.Error().Err(err).Msg("could not mint admin session")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token})
}

func (s *Server) logoutHandler(w http.ResponseWriter, _ *http.Request) {
	s.auth.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) retentionHandler(w http.ResponseWriter, r *http.Request) {
	if s.retention == nil {
		http.Error(w, "retention sweeps not configured", http.StatusNotImplemented)
		return
	}
	n, err := s.retention.Sweep(r.Context())
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
}
