// Package handler exposes the coupon service over JSON/HTTP.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/evermart/coupon-service/internal/domain/coupon"
)

// Handler holds the HTTP endpoints for coupon validation, redemption, and
// administration.
type Handler struct {
	coupons   *coupon.Service
	validator coupon.Validator
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(coupons *coupon.Service, validator coupon.Validator) *Handler {
	return &Handler{
		coupons:   coupons,
		validator: validator,
	}
}

// Routes builds the API router. Administrative routes are wrapped with the
// given authentication middleware; public routes are not.
func (h *Handler) Routes(requireAPIKey func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Route("/coupons", func(r chi.Router) {
		r.Get("/", h.ListCoupons)
		r.Post("/validate", h.ValidateCoupon)
		r.Post("/redeem", h.RedeemCoupon)
	})

	r.Route("/admin/coupons", func(r chi.Router) {
		r.Use(requireAPIKey)
		r.Post("/", h.CreateCoupon)
		r.Get("/", h.ListAllCoupons)
		r.Get("/{code}", h.GetCoupon)
		r.Put("/{code}", h.UpdateCoupon)
		r.Delete("/{code}", h.DeleteCoupon)
	})

	return r
}

// errorResponse is the uniform JSON error body.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Code: status, Message: message})
}

func writeReasonError(w http.ResponseWriter, status int, reason coupon.Reason) {
	writeJSON(w, status, errorResponse{
		Code:    status,
		Message: "coupon ineligible",
		Reason:  string(reason),
	})
}

// decode parses the request body into v, rejecting malformed JSON.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}
