package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter mounts the class fund API under /api/v1 next to the health and
// metrics endpoints. Every /api/v1 route requires the user header.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(Instrument)

	r.HandleFunc("/health", h.HealthCheckHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1/classes/{class:[0-9]+}").Subrouter()
	v1.Use(RequireUser)

	v1.HandleFunc("/invoices/{invoice:[0-9]+}/payments", h.SubmitPaymentHandler).Methods(http.MethodPost)
	v1.HandleFunc("/payments", h.ListPaymentsHandler).Methods(http.MethodGet)
	v1.HandleFunc("/payments/approved", h.ApprovedPaymentsHandler).Methods(http.MethodGet)
	v1.HandleFunc("/payments/{payment:[0-9]+}", h.GetPaymentHandler).Methods(http.MethodGet)
	v1.HandleFunc("/payments/{payment:[0-9]+}/proof", h.UploadProofHandler).Methods(http.MethodPost)
	v1.HandleFunc("/payments/{payment:[0-9]+}/verify", h.VerifyPaymentHandler).Methods(http.MethodPost)
	v1.HandleFunc("/fund-account/summary", h.SummaryHandler).Methods(http.MethodGet)

	return r
}
