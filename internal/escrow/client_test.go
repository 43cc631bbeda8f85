package escrow_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milestone-service/internal/escrow"
)

func TestFundSendsIdempotencyKey(t *testing.T) {
	milestoneID := uuid.New()
	var gotKey, gotPath string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(escrow.Receipt{
			Reference:   "esc-123",
			MilestoneID: milestoneID,
			Operation:   "fund",
			Amount:      5000,
			Currency:    "EUR",
			RecordedAt:  time.Now(),
		})
	}))
	defer srv.Close()

	client := escrow.NewClient(srv.URL, 2*time.Second)
	receipt, err := client.Fund(context.Background(), milestoneID, 5000, "EUR")
	require.NoError(t, err)

	assert.Equal(t, "esc-123", receipt.Reference)
	assert.Equal(t, "/escrow/fund", gotPath)
	assert.Equal(t, fmt.Sprintf("fund:%s", milestoneID), gotKey)
	assert.Equal(t, float64(5000), gotBody["amount"])
	assert.Equal(t, "EUR", gotBody["currency"])
}

func TestReleaseUsesOwnIdempotencyKey(t *testing.T) {
	milestoneID := uuid.New()
	var gotKey string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		json.NewEncoder(w).Encode(escrow.Receipt{Reference: "esc-456", MilestoneID: milestoneID, Operation: "release"})
	}))
	defer srv.Close()

	client := escrow.NewClient(srv.URL, 2*time.Second)
	receipt, err := client.Release(context.Background(), milestoneID)
	require.NoError(t, err)

	assert.Equal(t, "esc-456", receipt.Reference)
	assert.Equal(t, fmt.Sprintf("release:%s", milestoneID), gotKey)
}

func TestServerErrorWrapsOperationFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := escrow.NewClient(srv.URL, 2*time.Second)
	milestoneID := uuid.New()

	_, err := client.Fund(context.Background(), milestoneID, 100, "EUR")
	require.Error(t, err)

	var opErr *escrow.OperationFailedError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "fund", opErr.Operation)
	assert.Equal(t, milestoneID, opErr.MilestoneID)
}

func TestRejectionStatusIsNotRetriedAsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Ledger refuses the operation outright (e.g. already released
		// with a different key).
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	client := escrow.NewClient(srv.URL, 2*time.Second)

	_, err := client.Release(context.Background(), uuid.New())
	var opErr *escrow.OperationFailedError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "release", opErr.Operation)
}

func TestLedgerRefusalsDoNotOpenBreaker(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	client := escrow.NewClient(srv.URL, 2*time.Second)

	// Business refusals are deterministic per milestone; the ledger is
	// healthy, so every call must still reach it.
	for i := 0; i < 5; i++ {
		_, err := client.Fund(context.Background(), uuid.New(), 100, "EUR")
		require.Error(t, err)
	}
	assert.Equal(t, 5, hits, "a refusal is an answer, not an outage")
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := escrow.NewClient(srv.URL, 2*time.Second)
	milestoneID := uuid.New()

	// Failure threshold is three; subsequent calls fail fast without
	// reaching the ledger.
	for i := 0; i < 5; i++ {
		_, err := client.Fund(context.Background(), milestoneID, 100, "EUR")
		require.Error(t, err)
	}
	assert.Equal(t, 3, hits)
}
