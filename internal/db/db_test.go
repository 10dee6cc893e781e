package db

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := NewDB(dbPath)
	require.NoError(t, err, "failed to create test DB")
	t.Cleanup(func() { db.Close() })
	return db
}

func testActuation(degree uint8, requestedAt float64) Actuation {
	return Actuation{
		ID:          uuid.NewString(),
		Degree:      degree,
		Source:      "ble",
		Payload:     "90",
		RequestedAt: requestedAt,
		CompletedAt: requestedAt + 2,
		DurationMs:  2000,
	}
}

func TestRecordActuation_RoundTrip(t *testing.T) {
	db := openTestDB(t)

	in := Actuation{
		ID:          uuid.NewString(),
		Degree:      90,
		Source:      "http",
		Payload:     "+90",
		RequestedAt: 1000.5,
		CompletedAt: 1002.5,
		DurationMs:  2000,
	}
	require.NoError(t, db.RecordActuation(in))

	out, err := db.Actuations(0, 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, in, out[0])
}

func TestActuations_WindowAndOrder(t *testing.T) {
	db := openTestDB(t)

	now := float64(time.Now().Unix())
	old := testActuation(10, now-10*86400)
	mid := testActuation(20, now-3600)
	recent := testActuation(30, now)

	for _, a := range []Actuation{old, mid, recent} {
		require.NoError(t, db.RecordActuation(a))
	}

	out, err := db.Actuations(1, 10)
	require.NoError(t, err)
	require.Len(t, out, 2, "ten day old row should fall outside a one day window")
	assert.Equal(t, recent.ID, out[0].ID, "newest first")
	assert.Equal(t, mid.ID, out[1].ID)

	all, err := db.Actuations(0, 10)
	require.NoError(t, err)
	assert.Len(t, all, 3, "zero days means no window")
}

func TestActuations_Limit(t *testing.T) {
	db := openTestDB(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, db.RecordActuation(testActuation(90, float64(1000+i))))
	}

	out, err := db.Actuations(0, 2)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestRecordRejection_RoundTrip(t *testing.T) {
	db := openTestDB(t)

	in := Rejection{
		ID:         uuid.NewString(),
		Payload:    "abc",
		Reason:     "not_a_number",
		Source:     "ble",
		RejectedAt: 2000.25,
	}
	require.NoError(t, db.RecordRejection(in))

	out, err := db.Rejections(10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, in, out[0])
}

func TestRejections_OrderAndLimit(t *testing.T) {
	db := openTestDB(t)

	for i, reason := range []string{"not_a_number", "degree_range", "busy"} {
		require.NoError(t, db.RecordRejection(Rejection{
			ID:         uuid.NewString(),
			Payload:    "x",
			Reason:     reason,
			Source:     "ble",
			RejectedAt: float64(100 + i),
		}))
	}

	out, err := db.Rejections(2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "busy", out[0].Reason, "newest first")
	assert.Equal(t, "degree_range", out[1].Reason)
}

func TestActuationCountsByHour(t *testing.T) {
	db := openTestDB(t)

	morning := float64(time.Date(2026, 3, 1, 5, 15, 0, 0, time.UTC).Unix())
	afternoon := float64(time.Date(2026, 3, 1, 14, 40, 0, 0, time.UTC).Unix())

	require.NoError(t, db.RecordActuation(testActuation(90, morning)))
	require.NoError(t, db.RecordActuation(testActuation(90, morning+60)))
	require.NoError(t, db.RecordActuation(testActuation(90, afternoon)))

	counts, err := db.ActuationCountsByHour(0)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, HourCount{Hour: 5, Count: 2}, counts[0])
	assert.Equal(t, HourCount{Hour: 14, Count: 1}, counts[1])
}

func TestActuationCountsByDegree(t *testing.T) {
	db := openTestDB(t)

	for _, degree := range []uint8{90, 90, 180, 0} {
		require.NoError(t, db.RecordActuation(testActuation(degree, 1000)))
	}

	counts, err := db.ActuationCountsByDegree(0)
	require.NoError(t, err)
	require.Len(t, counts, 3)
	assert.Equal(t, DegreeCount{Degree: 0, Count: 1}, counts[0])
	assert.Equal(t, DegreeCount{Degree: 90, Count: 2}, counts[1])
	assert.Equal(t, DegreeCount{Degree: 180, Count: 1}, counts[2])
}

func TestOpenDB_SkipsSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "bare.db")

	db, err := OpenDB(dbPath)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Query("SELECT id FROM actuations")
	assert.Error(t, err, "OpenDB must not create tables")
}

// TestAttachAdminRoutes checks route registration. Access control may
// keep the handlers from returning 200 under httptest, so only 404 is
// treated as a wiring failure.
func TestAttachAdminRoutes(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.RecordActuation(testActuation(90, 1000)))

	httpMux := http.NewServeMux()
	db.AttachAdminRoutes(httpMux)

	t.Run("tailsql endpoint", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/debug/tailsql/", nil)
		w := httptest.NewRecorder()

		httpMux.ServeHTTP(w, req)

		if w.Code == http.StatusNotFound {
			t.Error("Route /debug/tailsql/ should be registered, got 404")
		}
	})

	t.Run("backup endpoint", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/debug/backup", nil)
		w := httptest.NewRecorder()

		httpMux.ServeHTTP(w, req)

		if w.Code == http.StatusNotFound {
			t.Error("Route /debug/backup should be registered, got 404")
		}

		if w.Code == http.StatusOK {
			assert.NotEmpty(t, w.Header().Get("Content-Disposition"))
			assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
		}
	})
}

func TestActuationString(t *testing.T) {
	a := testActuation(90, 1000)
	s := a.String()
	assert.Contains(t, s, "Degree: 90")
	assert.Contains(t, s, a.ID)
}

func TestRejectionString(t *testing.T) {
	r := Rejection{ID: "abc", Payload: "xyz", Reason: "busy", Source: "ble", RejectedAt: 5}
	s := r.String()
	assert.Contains(t, s, `Payload: "xyz"`)
	assert.Contains(t, s, "Reason: busy")
}
