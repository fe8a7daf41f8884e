package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/punchamoorthee/classfund/internal/models"
	"github.com/punchamoorthee/classfund/internal/service"
)

const dateLayout = "2006-01-02"

// maxBody bounds a submission: one proof plus the form fields.
const maxBody = service.MaxProofBytes + 1<<20

type submitPayload struct {
	Amount *int64 `json:"amount"`
	Method string `json:"method"`
	TxnRef string `json:"txn_ref"`
}

func (h *Handler) SubmitPaymentHandler(w http.ResponseWriter, r *http.Request) {
	actor := h.actor(w, r)
	if actor == nil {
		return
	}
	invoiceID, ok := pathID(w, r, "invoice")
	if !ok {
		return
	}

	// 1. Decode JSON or multipart
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	var payload submitPayload
	var up *models.Upload
	if isMultipart(r) {
		var err error
		if up, err = readUpload(r); err != nil {
			respondWithUploadError(w, err)
			return
		}
		payload.Method = r.FormValue("method")
		payload.TxnRef = r.FormValue("txn_ref")
		if raw := strings.TrimSpace(r.FormValue("amount")); raw != "" {
			amount, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				respondWithDetails(w, http.StatusUnprocessableEntity, "Validation failed", map[string]string{"amount": "must_be_integer"})
				return
			}
			payload.Amount = &amount
		}
	} else if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if payload.Amount == nil {
		respondWithDetails(w, http.StatusUnprocessableEntity, "Validation failed", map[string]string{"amount": "required"})
		return
	}

	// 2. Call Service
	req := models.SubmitPaymentRequest{Amount: *payload.Amount, Method: payload.Method, TxnRef: payload.TxnRef}
	p, err := h.payments.Submit(r.Context(), actor, invoiceID, req, up)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, map[string]any{"payment": p})
}

func (h *Handler) UploadProofHandler(w http.ResponseWriter, r *http.Request) {
	actor := h.actor(w, r)
	if actor == nil {
		return
	}
	paymentID, ok := pathID(w, r, "payment")
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	var up *models.Upload
	if isMultipart(r) {
		var err error
		if up, err = readUpload(r); err != nil {
			respondWithUploadError(w, err)
			return
		}
	}

	p, err := h.payments.AttachProof(r.Context(), actor, paymentID, up)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"payment": p})
}

func (h *Handler) ListPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	actor := h.actor(w, r)
	if actor == nil {
		return
	}
	rows, err := h.payments.List(r.Context(), actor, r.URL.Query().Get("status"))
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithRows(w, r, rows)
}

func (h *Handler) ApprovedPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	actor := h.actor(w, r)
	if actor == nil {
		return
	}
	q := queryParams{values: r.URL.Query(), bad: map[string]string{}}
	aq := models.ApprovedQuery{
		CycleID:  q.id("fee_cycle_id"),
		MemberID: q.id("member_id"),
		UserID:   q.id("user_id"),
		From:     q.date("from"),
		To:       q.date("to"),
	}
	if len(q.bad) > 0 {
		respondWithDetails(w, http.StatusUnprocessableEntity, "Validation failed", q.bad)
		return
	}

	rows, err := h.payments.ApprovedList(r.Context(), actor, aq)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithRows(w, r, rows)
}

func (h *Handler) GetPaymentHandler(w http.ResponseWriter, r *http.Request) {
	actor := h.actor(w, r)
	if actor == nil {
		return
	}
	paymentID, ok := pathID(w, r, "payment")
	if !ok {
		return
	}
	d, err := h.payments.Detail(r.Context(), actor, paymentID)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"payment": d})
}

func (h *Handler) VerifyPaymentHandler(w http.ResponseWriter, r *http.Request) {
	actor := h.actor(w, r)
	if actor == nil {
		return
	}
	paymentID, ok := pathID(w, r, "payment")
	if !ok {
		return
	}
	var req models.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	p, err := h.payments.Verify(r.Context(), actor, paymentID, req.Action)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"message": "updated", "status": p.Status, "payment": p})
}

func (h *Handler) SummaryHandler(w http.ResponseWriter, r *http.Request) {
	actor := h.actor(w, r)
	if actor == nil {
		return
	}
	q := queryParams{values: r.URL.Query(), bad: map[string]string{}}
	f := models.SummaryFilter{
		CycleID: q.id("fee_cycle_id"),
		From:    q.date("from"),
		To:      q.date("to"),
	}
	if len(q.bad) > 0 {
		respondWithDetails(w, http.StatusUnprocessableEntity, "Validation failed", q.bad)
		return
	}

	s, err := h.summary.Summary(r.Context(), actor, f)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, s)
}

func respondWithRows(w http.ResponseWriter, r *http.Request, rows []models.PaymentRow) {
	if r.URL.Query().Get("group") == "cycle" {
		respondWithJSON(w, http.StatusOK, map[string]any{"cycles": models.GroupByCycle(rows)})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"payments": rows})
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

var errTooLarge = errors.New("request body too large")

// readUpload parses a multipart form and returns the proof sent as "image"
// or "proof", or nil when neither is present.
func readUpload(r *http.Request) (*models.Upload, error) {
	if err := r.ParseMultipartForm(maxBody); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, errTooLarge
		}
		return nil, err
	}
	for _, field := range []string{"image", "proof"} {
		file, hdr, err := r.FormFile(field)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			return nil, err
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, service.MaxProofBytes+1))
		if err != nil {
			return nil, err
		}
		return &models.Upload{
			Filename:    hdr.Filename,
			ContentType: hdr.Header.Get("Content-Type"),
			Data:        data,
		}, nil
	}
	return nil, nil
}

func respondWithUploadError(w http.ResponseWriter, err error) {
	if errors.Is(err, errTooLarge) {
		respondWithDetails(w, http.StatusUnprocessableEntity, "Validation failed", map[string]string{"image": "too_large"})
		return
	}
	respondWithError(w, http.StatusBadRequest, "Malformed multipart body")
}

// queryParams parses optional query values, collecting violations.
type queryParams struct {
	values map[string][]string
	bad    map[string]string
}

func (q queryParams) get(name string) string {
	if v := q.values[name]; len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

func (q queryParams) id(name string) int64 {
	raw := q.get(name)
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		q.bad[name] = "must_be_id"
		return 0
	}
	return id
}

func (q queryParams) date(name string) *time.Time {
	raw := q.get(name)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		q.bad[name] = "must_be_date"
		return nil
	}
	return &t
}
