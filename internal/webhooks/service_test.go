/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/forgeplan/internal/events"
	"github.com/friendsincode/forgeplan/internal/models"
	"github.com/friendsincode/forgeplan/internal/store"
)

func newTestStore(t *testing.T) (*store.Store, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.WebhookTarget{}, &models.WebhookDelivery{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store.New(db, nil, zerolog.Nop()), db
}

func registerTarget(t *testing.T, st *store.Store, name, url, secret, eventList string) *models.WebhookTarget {
	t.Helper()
	target := &models.WebhookTarget{
		Name:   name,
		URL:    url,
		Secret: secret,
		Events: eventList,
		Active: true,
	}
	if err := st.CreateWebhookTarget(context.Background(), target); err != nil {
		t.Fatalf("create target: %v", err)
	}
	return target
}

func TestDispatchDeliversSignedEnvelope(t *testing.T) {
	var gotBody []byte
	var gotSig, gotEvent string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get("X-Forgeplan-Signature")
		gotEvent = r.Header.Get("X-Forgeplan-Event")
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	st, db := newTestStore(t)
	registerTarget(t, st, "ci", ts.URL, "s3cret", "")

	svc := New(st, events.NewBus(), zerolog.Nop())
	svc.Dispatch(context.Background(), events.EventBookingCommitted, events.Payload{
		"booking_id": "bk-1",
	})

	if gotEvent != "booking.committed" {
		t.Errorf("event header = %q", gotEvent)
	}

	var envelope Envelope
	if err := json.Unmarshal(gotBody, &envelope); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if envelope.Data["booking_id"] != "bk-1" {
		t.Errorf("data = %+v", envelope.Data)
	}

	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write(gotBody)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if gotSig != want {
		t.Errorf("signature = %q, want %q", gotSig, want)
	}

	var deliveries []models.WebhookDelivery
	if err := db.Find(&deliveries).Error; err != nil {
		t.Fatalf("load deliveries: %v", err)
	}
	if len(deliveries) != 1 || deliveries[0].StatusCode != http.StatusOK || deliveries[0].Error != "" {
		t.Errorf("deliveries = %+v", deliveries)
	}
}

func TestDispatchFiltersByEventList(t *testing.T) {
	hits := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	st, _ := newTestStore(t)
	registerTarget(t, st, "overdue-only", ts.URL, "", "stage.overdue")

	svc := New(st, events.NewBus(), zerolog.Nop())
	svc.Dispatch(context.Background(), events.EventBookingCommitted, events.Payload{})
	if hits != 0 {
		t.Fatalf("hits = %d after unsubscribed event", hits)
	}

	svc.Dispatch(context.Background(), events.EventStageOverdue, events.Payload{})
	if hits != 1 {
		t.Errorf("hits = %d after subscribed event", hits)
	}
}

func TestDispatchSkipsInactiveTargets(t *testing.T) {
	hits := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer ts.Close()

	st, db := newTestStore(t)
	target := registerTarget(t, st, "paused", ts.URL, "", "")
	if err := db.Model(&models.WebhookTarget{}).Where("id = ?", target.ID).Update("active", false).Error; err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	svc := New(st, events.NewBus(), zerolog.Nop())
	svc.Dispatch(context.Background(), events.EventStageOverdue, events.Payload{})
	if hits != 0 {
		t.Errorf("hits = %d for inactive target", hits)
	}
}

func TestDeliveryErrorRecorded(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	st, db := newTestStore(t)
	registerTarget(t, st, "flaky", ts.URL, "", "")

	svc := New(st, events.NewBus(), zerolog.Nop())
	svc.Dispatch(context.Background(), events.EventStageOverdue, events.Payload{})

	var deliveries []models.WebhookDelivery
	if err := db.Find(&deliveries).Error; err != nil {
		t.Fatalf("load deliveries: %v", err)
	}
	if len(deliveries) != 1 || deliveries[0].StatusCode != http.StatusBadGateway || deliveries[0].Error == "" {
		t.Errorf("deliveries = %+v", deliveries)
	}
}

func TestTestTargetReportsFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	st, _ := newTestStore(t)
	svc := New(st, events.NewBus(), zerolog.Nop())

	target := &models.WebhookTarget{Name: "missing", URL: ts.URL}
	if err := svc.TestTarget(context.Background(), target); err == nil {
		t.Error("expected error for non-2xx response")
	}
}
