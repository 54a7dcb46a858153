/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueAndParse(t *testing.T) {
	secret := []byte("test-secret")

	token, err := Issue(secret, Claims{UserID: "u-1", Roles: []string{RolePlanner}}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := Parse(secret, token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.UserID != "u-1" {
		t.Errorf("UserID = %q, want u-1", claims.UserID)
	}
	if !claims.HasRole(RolePlanner) {
		t.Error("expected planner role")
	}
	if claims.HasRole(RoleViewer) {
		t.Error("did not expect viewer role")
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, err := Issue([]byte("secret-a"), Claims{UserID: "u-1"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := Parse([]byte("secret-b"), token); err == nil {
		t.Fatal("expected error for wrong secret")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	secret := []byte("test-secret")

	token, err := Issue(secret, Claims{UserID: "u-1"}, -time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := Parse(secret, token); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestParseRejectsUnexpectedAlgorithm(t *testing.T) {
	secret := []byte("test-secret")

	tok := jwt.NewWithClaims(jwt.SigningMethodHS384, Claims{
		UserID: "u-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := tok.SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := Parse(secret, signed); err == nil {
		t.Fatal("expected error for HS384 token")
	}
}
