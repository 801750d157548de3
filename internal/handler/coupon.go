package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/evermart/coupon-service/internal/domain/coupon"
)

type validateRequest struct {
	UserID      string          `json:"userId"`
	Code        string          `json:"code"`
	CartTotal   decimal.Decimal `json:"cartTotal"`
	CategoryIDs []string        `json:"categoryIds"`
}

type validateResponse struct {
	Valid    bool             `json:"valid"`
	Reason   string           `json:"reason,omitempty"`
	Discount *decimal.Decimal `json:"discount,omitempty"`
}

// ValidateCoupon answers the speculative pre-checkout eligibility question.
// Ineligibility is a 200 with valid=false and a reason code; only malformed
// input and infrastructure failures produce error statuses.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	if req.CartTotal.IsNegative() {
		writeError(w, http.StatusBadRequest, "cartTotal must not be negative")
		return
	}

	res, err := h.validator.Validate(r.Context(), req.UserID, req.Code, req.CartTotal, req.CategoryIDs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := validateResponse{Valid: res.Valid}
	if res.Valid {
		resp.Discount = &res.Discount
	} else {
		resp.Reason = string(res.Reason)
	}
	writeJSON(w, http.StatusOK, resp)
}

type redeemRequest struct {
	UserID      string          `json:"userId"`
	Code        string          `json:"code"`
	OrderID     string          `json:"orderId"`
	CartTotal   decimal.Decimal `json:"cartTotal"`
	CategoryIDs []string        `json:"categoryIds"`
}

type redeemResponse struct {
	UsageID    string `json:"usageId"`
	CouponID   string `json:"couponId"`
	CouponCode string `json:"couponCode"`
	RedeemedAt string `json:"redeemedAt"`
}

// RedeemCoupon runs the atomic redemption transaction. A failed eligibility
// check maps to 404 (unknown code) or 409 (any other reason) with the reason
// code in the body.
func (h *Handler) RedeemCoupon(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CartTotal.IsNegative() {
		writeError(w, http.StatusBadRequest, "cartTotal must not be negative")
		return
	}

	entry, err := h.coupons.Redeem(r.Context(), coupon.RedeemRequest{
		Code:        req.Code,
		UserID:      req.UserID,
		OrderID:     req.OrderID,
		CartTotal:   req.CartTotal,
		CategoryIDs: req.CategoryIDs,
	})
	if err != nil {
		var defErr *coupon.DefinitionError
		if errors.As(err, &defErr) {
			writeError(w, http.StatusBadRequest, defErr.Error())
			return
		}
		var inelErr *coupon.IneligibleError
		if errors.As(err, &inelErr) {
			status := http.StatusConflict
			if inelErr.Reason == coupon.ReasonNotFound {
				status = http.StatusNotFound
			}
			writeReasonError(w, status, inelErr.Reason)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, redeemResponse{
		UsageID:    entry.ID,
		CouponID:   entry.CouponID,
		CouponCode: entry.CouponCode,
		RedeemedAt: entry.CreatedAt.UTC().Format(timeFormat),
	})
}

// ListCoupons returns the coupons currently redeemable by the requesting
// user. Anonymous requests see only unrestricted coupons.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")

	coupons, err := h.coupons.ListForUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, toCouponResponses(coupons))
}
