package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/evermart/coupon-service/internal/domain/coupon"
)

const timeFormat = time.RFC3339

type couponResponse struct {
	ID              string          `json:"id"`
	Code            string          `json:"code"`
	Name            string          `json:"name"`
	DiscountType    string          `json:"discountType"`
	Value           decimal.Decimal `json:"value"`
	MinOrderValue   decimal.Decimal `json:"minOrderValue"`
	MaxDiscount     decimal.Decimal `json:"maxDiscount"`
	TotalLimit      int             `json:"totalLimit"`
	PerUserLimit    int             `json:"perUserLimit"`
	ValidFrom       *time.Time      `json:"validFrom,omitempty"`
	ValidUntil      *time.Time      `json:"validUntil,omitempty"`
	Active          bool            `json:"active"`
	CategoryIDs     []string        `json:"categoryIds"`
	AssignedUserIDs []string        `json:"assignedUserIds"`
	RetiredAt       *time.Time      `json:"retiredAt,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

func toCouponResponse(c *coupon.Coupon) couponResponse {
	return couponResponse{
		ID:              c.ID,
		Code:            c.Code,
		Name:            c.Name,
		DiscountType:    string(c.DiscountType),
		Value:           c.Value,
		MinOrderValue:   c.MinOrderValue,
		MaxDiscount:     c.MaxDiscount,
		TotalLimit:      c.TotalLimit,
		PerUserLimit:    c.PerUserLimit,
		ValidFrom:       c.ValidFrom,
		ValidUntil:      c.ValidUntil,
		Active:          c.Active,
		CategoryIDs:     emptyIfNil(c.CategoryIDs),
		AssignedUserIDs: emptyIfNil(c.AssignedUserIDs),
		RetiredAt:       c.RetiredAt,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

func toCouponResponses(coupons []coupon.Coupon) []couponResponse {
	out := make([]couponResponse, len(coupons))
	for i := range coupons {
		out[i] = toCouponResponse(&coupons[i])
	}
	return out
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

type createCouponRequest struct {
	Code            string          `json:"code"`
	Name            string          `json:"name"`
	DiscountType    string          `json:"discountType"`
	Value           decimal.Decimal `json:"value"`
	MinOrderValue   decimal.Decimal `json:"minOrderValue"`
	MaxDiscount     decimal.Decimal `json:"maxDiscount"`
	TotalLimit      int             `json:"totalLimit"`
	PerUserLimit    int             `json:"perUserLimit"`
	ValidFrom       *time.Time      `json:"validFrom"`
	ValidUntil      *time.Time      `json:"validUntil"`
	Active          *bool           `json:"active"`
	CategoryIDs     []string        `json:"categoryIds"`
	AssignedUserIDs []string        `json:"assignedUserIds"`
}

// CreateCoupon persists a new coupon definition, with optional user
// assignments created in the same write.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req createCouponRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c := &coupon.Coupon{
		Code:            req.Code,
		Name:            req.Name,
		DiscountType:    coupon.DiscountType(req.DiscountType),
		Value:           req.Value,
		MinOrderValue:   req.MinOrderValue,
		MaxDiscount:     req.MaxDiscount,
		TotalLimit:      req.TotalLimit,
		PerUserLimit:    req.PerUserLimit,
		ValidFrom:       req.ValidFrom,
		ValidUntil:      req.ValidUntil,
		Active:          true,
		CategoryIDs:     req.CategoryIDs,
		AssignedUserIDs: req.AssignedUserIDs,
	}
	if req.Active != nil {
		c.Active = *req.Active
	}

	created, err := h.coupons.Create(r.Context(), c)
	if err != nil {
		var defErr *coupon.DefinitionError
		if errors.As(err, &defErr) {
			writeError(w, http.StatusBadRequest, defErr.Error())
			return
		}
		if errors.Is(err, coupon.ErrCodeExists) {
			writeError(w, http.StatusConflict, "coupon code already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, toCouponResponse(created))
}

// ListAllCoupons returns every coupon, including inactive and retired ones.
func (h *Handler) ListAllCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.coupons.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toCouponResponses(coupons))
}

// GetCoupon returns a single coupon by code.
func (h *Handler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	c, err := h.coupons.Get(r.Context(), code)
	if err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			writeError(w, http.StatusNotFound, "coupon not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toCouponResponse(c))
}

type updateCouponRequest struct {
	Name            *string          `json:"name"`
	DiscountType    *string          `json:"discountType"`
	Value           *decimal.Decimal `json:"value"`
	MinOrderValue   *decimal.Decimal `json:"minOrderValue"`
	MaxDiscount     *decimal.Decimal `json:"maxDiscount"`
	TotalLimit      *int             `json:"totalLimit"`
	PerUserLimit    *int             `json:"perUserLimit"`
	ValidFrom       *time.Time       `json:"validFrom"`
	ValidUntil      *time.Time       `json:"validUntil"`
	Active          *bool            `json:"active"`
	CategoryIDs     []string         `json:"categoryIds"`
	AssignedUserIDs []string         `json:"assignedUserIds"`
}

// UpdateCoupon applies a partial update. Omitted fields are left unchanged;
// a provided assignedUserIds replaces the assignment set exactly.
func (h *Handler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	var req updateCouponRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	upd := coupon.Update{
		Name:            req.Name,
		Value:           req.Value,
		MinOrderValue:   req.MinOrderValue,
		MaxDiscount:     req.MaxDiscount,
		TotalLimit:      req.TotalLimit,
		PerUserLimit:    req.PerUserLimit,
		ValidFrom:       req.ValidFrom,
		ValidUntil:      req.ValidUntil,
		Active:          req.Active,
		CategoryIDs:     req.CategoryIDs,
		AssignedUserIDs: req.AssignedUserIDs,
	}
	if req.DiscountType != nil {
		t := coupon.DiscountType(*req.DiscountType)
		upd.DiscountType = &t
	}

	updated, err := h.coupons.Update(r.Context(), code, upd)
	if err != nil {
		var defErr *coupon.DefinitionError
		if errors.As(err, &defErr) {
			writeError(w, http.StatusBadRequest, defErr.Error())
			return
		}
		if errors.Is(err, coupon.ErrNotFound) {
			writeError(w, http.StatusNotFound, "coupon not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, toCouponResponse(updated))
}

type deleteCouponResponse struct {
	// Retired reports that the coupon had usage history and was deactivated
	// in place instead of removed.
	Retired bool `json:"retired"`
}

// DeleteCoupon removes a coupon, or retires it when ledger entries still
// reference it.
func (h *Handler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	retired, err := h.coupons.Delete(r.Context(), code)
	if err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			writeError(w, http.StatusNotFound, "coupon not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, deleteCouponResponse{Retired: retired})
}
