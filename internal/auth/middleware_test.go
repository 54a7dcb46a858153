/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	h := Middleware([]byte("secret"))(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/workloads", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestMiddlewareRejectsMalformedHeader(t *testing.T) {
	h := Middleware([]byte("secret"))(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/workloads", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestMiddlewarePassesValidToken(t *testing.T) {
	secret := []byte("secret")
	token, err := Issue(secret, Claims{UserID: "u-1", Roles: []string{RoleViewer}}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	var gotClaims *Claims
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClaims, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	h := Middleware(secret)(inner)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/workloads", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if gotClaims == nil || gotClaims.UserID != "u-1" {
		t.Errorf("claims not propagated, got %+v", gotClaims)
	}
}

func TestRequireRole(t *testing.T) {
	secret := []byte("secret")
	h := Middleware(secret)(RequireRole(RolePlanner)(okHandler()))

	viewerToken, err := Issue(secret, Claims{UserID: "u-2", Roles: []string{RoleViewer}}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	plannerToken, err := Issue(secret, Claims{UserID: "u-3", Roles: []string{RolePlanner}}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/schedule/batch", nil)
	req.Header.Set("Authorization", "Bearer "+viewerToken)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Errorf("viewer status = %d, want %d", rr.Code, http.StatusForbidden)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/schedule/batch", nil)
	req.Header.Set("Authorization", "Bearer "+plannerToken)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("planner status = %d, want %d", rr.Code, http.StatusOK)
	}
}
