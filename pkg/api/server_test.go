package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agendawatch/agendawatch/pkg/config"
	"github.com/agendawatch/agendawatch/pkg/database"
	"github.com/agendawatch/agendawatch/pkg/models"
	"github.com/agendawatch/agendawatch/pkg/queue"
	"github.com/agendawatch/agendawatch/pkg/store"
)

func testServer(t *testing.T) (*Server, *store.Store, *queue.Queue) {
	t.Helper()
	db, err := database.NewClient(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	st := store.New(db)
	q := queue.New(db, config.DefaultQueueConfig())
	srv := NewServer(&config.HTTPConfig{Port: "0"}, db, st, q, nil)
	return srv, st, q
}

func get(t *testing.T, srv *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	srv.Router().ServeHTTP(rec, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := testServer(t)

	rec, body := get(t, srv, "/api/v1/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, body["version"])

	checks, ok := body["checks"].(map[string]any)
	require.True(t, ok)
	db, ok := checks["database"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "healthy", db["status"])
}

func TestHealthDegradedOnContamination(t *testing.T) {
	srv, st, _ := testServer(t)
	ctx := context.Background()

	city := models.City{
		Banana: "santamariaCA", Name: "Santa Maria", State: "CA",
		Vendor: models.VendorGranicus, Slug: "santamaria", Status: models.CityStatusActive,
	}
	require.NoError(t, st.UpsertCity(ctx, city))
	_, err := st.UpsertMeetings(ctx, city, []models.NormalizedMeeting{{
		VendorMeetingID: "101", Title: "Planning Commission",
		StartsAt:  time.Date(2025, 11, 19, 18, 0, 0, 0, time.UTC),
		PacketURL: "https://s3.amazonaws.com/granicus_production_attachments/someothercity/agenda.pdf",
	}})
	require.NoError(t, err)

	rec, body := get(t, srv, "/api/v1/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", body["status"])
}

func TestStatsEndpoint(t *testing.T) {
	srv, st, _ := testServer(t)
	require.NoError(t, st.UpsertCity(context.Background(), models.City{
		Banana: "paloaltoCA", Name: "Palo Alto", State: "CA",
		Vendor: models.VendorPrimeGov, Slug: "cityofpaloalto", Status: models.CityStatusActive,
	}))

	rec, body := get(t, srv, "/api/v1/stats")
	assert.Equal(t, http.StatusOK, rec.Code)

	byStatus, ok := body["cities_by_status"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, byStatus["active"])
}

func TestQueueEndpoint(t *testing.T) {
	srv, _, q := testServer(t)
	_, err := q.Enqueue(context.Background(), models.JobTypeMeeting, models.MeetingPayload{
		MeetingID: "meeting-paloaltoCA-7",
		SourceURL: "https://example.com/packet.pdf",
	})
	require.NoError(t, err)

	rec, body := get(t, srv, "/api/v1/queue")
	assert.Equal(t, http.StatusOK, rec.Code)

	counts, ok := body["queue"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, counts["pending"])
}
