package checkin_api_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-checkin/internal/checkin"
	"ms-checkin/internal/checkin/checkin_api"
	"ms-checkin/internal/codec"
	"ms-checkin/internal/ledger"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/participants"
	"ms-checkin/internal/policy"
	"ms-checkin/internal/registry"
	"ms-checkin/internal/sse"
)

// setupTestServer wires the real services over an in-memory database so the
// handlers are exercised end to end.
func setupTestServer(t *testing.T) (*chi.Mux, *bun.DB) {
	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	err = bunDB.ResetModel(context.Background(),
		(*models.Event)(nil),
		(*models.TicketType)(nil),
		(*models.Participant)(nil),
		(*models.CheckinHistory)(nil),
		(*models.AccessZone)(nil),
		(*models.CheckinStation)(nil),
	)
	require.NoError(t, err)
	t.Cleanup(func() { bunDB.Close() })

	ledgerDB := &ledger.DB{Bun: bunDB}
	participantDB := &participants.DB{Bun: bunDB}
	registryService := registry.NewService(&registry.DB{Bun: bunDB})

	service := checkin.NewService(
		participantDB,
		ledgerDB,
		participantDB,
		registryService,
		checkin.NewLocalLocker(time.Second),
		policy.NewEvaluator(time.UTC),
	)
	tokenCodec := codec.New("handler-test-secret")
	service.Codec = tokenCodec
	service.Emitter = sse.NewRedemptionEventEmitter()

	handler := &checkin_api.Handler{
		CheckinService: service,
		Registry:       registryService,
		Ledger:         ledgerDB,
		Participants:   participantDB,
		Codec:          tokenCodec,
		Logger:         logger.NewLogger(),
	}

	r := chi.NewRouter()
	r.Post("/api/v1/checkin", handler.Checkin)
	r.Post("/api/v1/checkin/bulk", handler.BulkCheckin)
	r.Post("/api/v1/tokens", handler.IssueToken)
	r.Post("/api/v1/participants", handler.CreateParticipant)
	r.Get("/api/v1/events/{eventID}/history", handler.History)
	r.Post("/api/v1/stations", handler.CreateStation)
	r.Get("/api/v1/stations/{stationID}", handler.GetStation)
	r.Post("/api/v1/zones", handler.CreateZone)

	return r, bunDB
}

func seedParticipant(t *testing.T, db *bun.DB, code string, ac models.AccessControl) models.Participant {
	ctx := context.Background()

	tt := models.TicketType{
		ID:            "tt-" + code,
		EventID:       "ev1",
		Name:          "Test Pass",
		AccessControl: ac,
		CreatedAt:     time.Now().UTC(),
	}
	_, err := db.NewInsert().Model(&tt).Exec(ctx)
	require.NoError(t, err)

	p := models.Participant{
		ID:           "p-" + code,
		EventID:      "ev1",
		TicketTypeID: tt.ID,
		Name:         "Test Person",
		Code:         code,
		Source:       models.ParticipantSourceManual,
		CreatedAt:    time.Now().UTC(),
	}
	_, err = db.NewInsert().Model(&p).Exec(ctx)
	require.NoError(t, err)
	return p
}

func postJSON(t *testing.T, router *chi.Mux, path string, body interface{}) *httptest.ResponseRecorder {
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", path, bytes.NewBuffer(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCheckinEndpoint(t *testing.T) {
	router, db := setupTestServer(t)
	seedParticipant(t, db, "GA-100", models.AccessControl{})

	t.Run("first scan succeeds", func(t *testing.T) {
		w := postJSON(t, router, "/api/v1/checkin", map[string]string{
			"code": "GA-100", "event_id": "ev1",
		})

		require.Equal(t, http.StatusOK, w.Code)
		var result checkin.RedemptionResult
		require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
		assert.Equal(t, checkin.StatusOK, result.Status)
		assert.Equal(t, 1, result.EntryNumber)
	})

	t.Run("second scan of a single-entry ticket reports already", func(t *testing.T) {
		w := postJSON(t, router, "/api/v1/checkin", map[string]string{
			"code": "GA-100", "event_id": "ev1",
		})

		require.Equal(t, http.StatusOK, w.Code)
		var result checkin.RedemptionResult
		require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
		assert.Equal(t, checkin.StatusAlready, result.Status)
	})

	t.Run("unknown code is a soft failure", func(t *testing.T) {
		w := postJSON(t, router, "/api/v1/checkin", map[string]string{
			"code": "NOPE", "event_id": "ev1",
		})

		require.Equal(t, http.StatusOK, w.Code)
		var result checkin.RedemptionResult
		require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
		assert.Equal(t, checkin.StatusError, result.Status)
		assert.Contains(t, result.Message, "Invalid ticket code")
	})

	t.Run("missing fields are rejected", func(t *testing.T) {
		w := postJSON(t, router, "/api/v1/checkin", map[string]string{"code": "GA-100"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid JSON is rejected", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/v1/checkin", bytes.NewBufferString(`{"code": "broken`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestBulkCheckinEndpoint(t *testing.T) {
	router, db := setupTestServer(t)
	seedParticipant(t, db, "GA-201", models.AccessControl{})
	seedParticipant(t, db, "GA-202", models.AccessControl{})

	w := postJSON(t, router, "/api/v1/checkin/bulk", map[string]interface{}{
		"codes":    []string{"GA-201", "GA-202", "MISSING"},
		"event_id": "ev1",
	})

	require.Equal(t, http.StatusOK, w.Code)
	var result checkin.BulkResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	assert.Equal(t, 2, result.Successful)
	assert.Equal(t, 1, result.Failed)
	assert.Len(t, result.Results, 3)
}

func TestHistoryEndpoint(t *testing.T) {
	router, db := setupTestServer(t)
	seedParticipant(t, db, "VIP-301", models.AccessControl{AllowMultipleEntries: true})

	for i := 0; i < 3; i++ {
		w := postJSON(t, router, "/api/v1/checkin", map[string]string{
			"code": "VIP-301", "event_id": "ev1",
		})
		require.Equal(t, http.StatusOK, w.Code)
	}

	req := httptest.NewRequest("GET", "/api/v1/events/ev1/history?limit=2", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var entries []models.CheckinHistory
	require.NoError(t, json.NewDecoder(w.Body).Decode(&entries))
	require.Len(t, entries, 2)
	assert.Equal(t, 3, entries[0].EntryNumber, "display order is newest first")
}

func TestIssueTokenEndpoint(t *testing.T) {
	router, db := setupTestServer(t)
	p := seedParticipant(t, db, "GA-401", models.AccessControl{})

	w := postJSON(t, router, "/api/v1/tokens", map[string]string{
		"participant_id": p.ID,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotEmpty(t, resp.Token)

	// The issued token must redeem like the bare code does.
	w = postJSON(t, router, "/api/v1/checkin", map[string]string{
		"code": resp.Token, "event_id": "ev1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var result checkin.RedemptionResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	assert.Equal(t, checkin.StatusOK, result.Status)
	assert.Equal(t, p.ID, result.ParticipantID)
}

func TestStationEndpoints(t *testing.T) {
	router, _ := setupTestServer(t)

	t.Run("station with unknown zone is rejected", func(t *testing.T) {
		w := postJSON(t, router, "/api/v1/stations", models.CheckinStation{
			EventID: "ev1", Name: "Gate A", AccessZone: "no-such-zone",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("station creation and fetch", func(t *testing.T) {
		w := postJSON(t, router, "/api/v1/zones", models.AccessZone{
			EventID: "ev1", Name: "Main Hall",
		})
		require.Equal(t, http.StatusCreated, w.Code)
		var zone models.AccessZone
		require.NoError(t, json.NewDecoder(w.Body).Decode(&zone))

		w = postJSON(t, router, "/api/v1/stations", models.CheckinStation{
			EventID: "ev1", Name: "Gate A", AccessZone: zone.ID,
		})
		require.Equal(t, http.StatusCreated, w.Code)
		var station models.CheckinStation
		require.NoError(t, json.NewDecoder(w.Body).Decode(&station))
		require.NotEmpty(t, station.ID)

		req := httptest.NewRequest("GET", fmt.Sprintf("/api/v1/stations/%s", station.ID), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var fetched models.CheckinStation
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&fetched))
		assert.Equal(t, "Gate A", fetched.Name)
		assert.Equal(t, 0, fetched.CheckedInCount)
	})
}
