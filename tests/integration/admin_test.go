//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestAdmin_NoAuth(t *testing.T) {
	resp := doJSON(t, http.MethodGet, "/api/admin/coupons", nil, "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestAdmin_InvalidKey(t *testing.T) {
	resp := doJSON(t, http.MethodGet, "/api/admin/coupons", nil, "wrong-key")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestAdmin_CouponLifecycle(t *testing.T) {
	// Create.
	create := map[string]any{
		"code":          "LIFECYCLE1",
		"name":          "lifecycle test",
		"discountType":  "percentage",
		"value":         "15",
		"minOrderValue": "10",
		"perUserLimit":  3,
	}
	resp := doJSON(t, http.MethodPost, "/api/admin/coupons", create, testAPIKey)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	created := decodeJSON[couponResponse](t, resp)
	resp.Body.Close()

	if !uuidPattern.MatchString(created.ID) {
		t.Errorf("id is not a UUID: %s", created.ID)
	}
	if !created.Active {
		t.Error("active should default to true")
	}

	// Duplicate code is rejected.
	resp = doJSON(t, http.MethodPost, "/api/admin/coupons", create, testAPIKey)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate create: expected 409, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Get.
	resp = doJSON(t, http.MethodGet, "/api/admin/coupons/LIFECYCLE1", nil, testAPIKey)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", resp.StatusCode)
	}
	got := decodeJSON[couponResponse](t, resp)
	resp.Body.Close()
	if got.ID != created.ID {
		t.Errorf("get id: got %s, want %s", got.ID, created.ID)
	}

	// Partial update: rename and deactivate, everything else untouched.
	update := map[string]any{
		"name":   "renamed",
		"active": false,
	}
	resp = doJSON(t, http.MethodPut, "/api/admin/coupons/LIFECYCLE1", update, testAPIKey)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", resp.StatusCode)
	}
	updated := decodeJSON[couponResponse](t, resp)
	resp.Body.Close()
	if updated.Name != "renamed" {
		t.Errorf("name: got %s, want renamed", updated.Name)
	}
	if updated.Active {
		t.Error("active should be false after update")
	}
	if updated.PerUserLimit != 3 {
		t.Errorf("perUserLimit changed: got %d, want 3", updated.PerUserLimit)
	}

	// Inactive coupon fails validation.
	resp = doPost(t, "/api/coupons/validate", validateRequest{
		Code:      "LIFECYCLE1",
		CartTotal: "50",
	})
	body := decodeJSON[validateResponse](t, resp)
	resp.Body.Close()
	if body.Reason != "INACTIVE" {
		t.Errorf("reason: got %s, want INACTIVE", body.Reason)
	}

	// Delete: no usage history, so the row is removed.
	resp = doJSON(t, http.MethodDelete, "/api/admin/coupons/LIFECYCLE1", nil, testAPIKey)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", resp.StatusCode)
	}
	del := decodeJSON[deleteResponse](t, resp)
	resp.Body.Close()
	if del.Retired {
		t.Error("unused coupon should be deleted, not retired")
	}

	resp = doJSON(t, http.MethodGet, "/api/admin/coupons/LIFECYCLE1", nil, testAPIKey)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete: expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAdmin_DeleteRetiresUsedCoupon(t *testing.T) {
	create := map[string]any{
		"code":         "RETIRE1",
		"name":         "retire test",
		"discountType": "fixed_amount",
		"value":        "5",
	}
	resp := doJSON(t, http.MethodPost, "/api/admin/coupons", create, testAPIKey)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doPost(t, "/api/coupons/redeem", redeemRequest{
		UserID:    "retire-user",
		Code:      "RETIRE1",
		CartTotal: "50",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("redeem: expected 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodDelete, "/api/admin/coupons/RETIRE1", nil, testAPIKey)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", resp.StatusCode)
	}
	del := decodeJSON[deleteResponse](t, resp)
	resp.Body.Close()
	if !del.Retired {
		t.Error("used coupon should be retired, not deleted")
	}

	// A retired coupon is no longer redeemable.
	resp = doPost(t, "/api/coupons/redeem", redeemRequest{
		UserID:    "retire-user-2",
		Code:      "RETIRE1",
		CartTotal: "50",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("redeem retired: expected 409, got %d", resp.StatusCode)
	}
}

func TestAdmin_InvalidDefinition(t *testing.T) {
	create := map[string]any{
		"code":         "BAD1",
		"discountType": "percentage",
		"value":        "150",
	}
	resp := doJSON(t, http.MethodPost, "/api/admin/coupons", create, testAPIKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
