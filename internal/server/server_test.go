package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgmodels "github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindconnect_booking/internal/booking"
	"mindconnect_booking/internal/config"
	"mindconnect_booking/internal/storage/models"
	"mindconnect_booking/internal/storage/sqlite"
	"mindconnect_booking/pkg/logger"
)

type recordingUpdates struct {
	mu      sync.Mutex
	updates []*tgmodels.Update
}

func (r *recordingUpdates) HandleUpdate(ctx context.Context, update *tgmodels.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, update)
}

type testServer struct {
	srv     *Server
	updates *recordingUpdates
}

// monday 2030-01-07 08:00 UTC
var monday = time.Date(2030, 1, 7, 8, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	bookings := booking.NewService(store, nil, booking.Options{
		Location:            time.UTC,
		ReminderLead:        time.Hour,
		DefaultWorkStart:    "09:00",
		DefaultWorkEnd:      "18:00",
		DefaultIntervalMins: 50,
	}, logger.NewNop())

	cfg := &config.Config{
		Telegram: config.TelegramConfig{SecretToken: "s3cret"},
		Server: config.ServerConfig{
			Port:               "0",
			RateLimitPerMinute: 1000,
			AllowedOrigins:     []string{"*"},
			ShutdownTimeout:    time.Second,
		},
	}

	updates := &recordingUpdates{}
	srv := New(cfg, logger.NewNop(), bookings, store, updates)
	srv.now = func() time.Time { return monday }
	t.Cleanup(srv.rateLimiter.Close)

	return &testServer{srv: srv, updates: updates}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func (ts *testServer) seed(t *testing.T) (counselorID, patientID int64) {
	t.Helper()

	rec := ts.do(t, http.MethodPost, "/api/counselors", `{
		"name": "Ana Souza",
		"email": "ana@clinic.example",
		"credential": "CRP 06/12345",
		"phone": "+55 11 98765-4321",
		"work_start": "09:00",
		"work_end": "10:00",
		"interval_mins": 20
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	c := decode[models.Counselor](t, rec)

	rec = ts.do(t, http.MethodPost, "/api/patients", `{"name": "Bruno Lima", "phone": "+5511912345678"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decode[models.Patient](t, rec)

	return c.ID, p.ID
}

func TestAPI_RegisterCounselorGeneratesSchedule(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/counselors", `{
		"name": "Ana Souza",
		"email": "ana@clinic.example",
		"credential": "CRP 06/12345",
		"phone": "+55 11 98765-4321",
		"work_start": "09:00",
		"work_end": "09:50",
		"interval_mins": 20
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	c := decode[models.Counselor](t, rec)
	assert.Equal(t, []string{"09:00 - 09:20", "09:20 - 09:40"}, labelsToStrings(c.Schedule))

	rec = ts.do(t, http.MethodPost, "/api/counselors", `{
		"name": "Ana Clone",
		"email": "ana@clinic.example",
		"credential": "CRP 06/99999",
		"phone": "+55 11 98765-0000"
	}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DUPLICATE_COUNSELOR", decode[ErrorResponse](t, rec).Code)

	rec = ts.do(t, http.MethodGet, "/api/counselors", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Counselor](t, rec), 1)
}

func labelsToStrings[T ~string](labels []T) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = string(l)
	}
	return out
}

func TestAPI_BookAndAvailability(t *testing.T) {
	ts := newTestServer(t)
	counselorID, patientID := ts.seed(t)

	slotsPath := fmt.Sprintf("/api/counselors/%d/slots?date=2030-01-07", counselorID)
	rec := ts.do(t, http.MethodGet, slotsPath, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"09:00 - 09:20", "09:20 - 09:40", "09:40 - 10:00"}, decode[[]string](t, rec))

	body := fmt.Sprintf(`{"counselor_id": %d, "patient_id": %d, "date": "2030-01-07", "slot": "09:20 - 09:40", "kind": "in_person"}`,
		counselorID, patientID)
	rec = ts.do(t, http.MethodPost, "/api/appointments", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	appt := decode[models.Appointment](t, rec)
	assert.Equal(t, models.KindInPerson, appt.Kind)
	assert.Equal(t, models.StatusBooked, appt.Status)

	rec = ts.do(t, http.MethodGet, slotsPath, "")
	assert.Equal(t, []string{"09:00 - 09:20", "09:40 - 10:00"}, decode[[]string](t, rec))

	rec = ts.do(t, http.MethodPost, "/api/appointments", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "SLOT_TAKEN", decode[ErrorResponse](t, rec).Code)

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/patients/%d/appointments", patientID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Appointment](t, rec), 1)

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/counselors/%d/appointments?date=2030-01-07", counselorID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Appointment](t, rec), 1)
}

func TestAPI_UpcomingSlotsDropStartedOnes(t *testing.T) {
	ts := newTestServer(t)
	counselorID, _ := ts.seed(t)
	ts.srv.now = func() time.Time { return time.Date(2030, 1, 7, 9, 10, 0, 0, time.UTC) }

	rec := ts.do(t, http.MethodGet, fmt.Sprintf("/api/counselors/%d/slots?date=2030-01-07&upcoming=true", counselorID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"09:20 - 09:40", "09:40 - 10:00"}, decode[[]string](t, rec))

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/counselors/%d/slots?date=2030-01-07&upcoming=maybe", counselorID), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_ErrorStatusMapping(t *testing.T) {
	ts := newTestServer(t)
	counselorID, patientID := ts.seed(t)

	book := func(counselorID int64, date, slot string) *httptest.ResponseRecorder {
		body := fmt.Sprintf(`{"counselor_id": %d, "patient_id": %d, "date": %q, "slot": %q}`, counselorID, patientID, date, slot)
		return ts.do(t, http.MethodPost, "/api/appointments", body)
	}

	tests := []struct {
		name   string
		rec    *httptest.ResponseRecorder
		status int
		code   string
	}{
		{"past slot", book(counselorID, "2020-01-07", "09:00 - 09:20"), http.StatusUnprocessableEntity, "PAST_SLOT"},
		{"unknown counselor", book(9999, "2030-01-07", "09:00 - 09:20"), http.StatusNotFound, "UNKNOWN_COUNSELOR"},
		{"malformed label", book(counselorID, "2030-01-07", "9h"), http.StatusBadRequest, "INVALID_SLOT_LABEL"},
		{"malformed date", book(counselorID, "07/01/2030", "09:00 - 09:20"), http.StatusBadRequest, "INVALID_DATE"},
		{"bad body", ts.do(t, http.MethodPost, "/api/appointments", `{"slot": 5}`), http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown field", ts.do(t, http.MethodPost, "/api/patients", `{"nome": "x"}`), http.StatusBadRequest, "INVALID_REQUEST"},
		{"bad id", ts.do(t, http.MethodGet, "/api/counselors/abc", ""), http.StatusBadRequest, "INVALID_ID"},
		{"missing counselor", ts.do(t, http.MethodGet, "/api/counselors/777", ""), http.StatusNotFound, "UNKNOWN_COUNSELOR"},
		{"bad hours", ts.do(t, http.MethodPut, fmt.Sprintf("/api/counselors/%d/hours", counselorID),
			`{"work_start": "10:00", "work_end": "09:00", "interval_mins": 30}`), http.StatusBadRequest, "INVALID_RANGE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.rec.Code, tt.rec.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, tt.rec).Code)
		})
	}
}

func TestAPI_SetWorkingHoursReplacesSchedule(t *testing.T) {
	ts := newTestServer(t)
	counselorID, _ := ts.seed(t)

	rec := ts.do(t, http.MethodPut, fmt.Sprintf("/api/counselors/%d/hours", counselorID),
		`{"work_start": "14:00", "work_end": "15:00", "interval_mins": 30}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	c := decode[models.Counselor](t, rec)
	assert.Equal(t, []string{"14:00 - 14:30", "14:30 - 15:00"}, labelsToStrings(c.Schedule))
}

func TestAPI_CancelFreesSlot(t *testing.T) {
	ts := newTestServer(t)
	counselorID, patientID := ts.seed(t)

	body := fmt.Sprintf(`{"counselor_id": %d, "patient_id": %d, "date": "2030-01-07", "slot": "09:00 - 09:20"}`, counselorID, patientID)
	rec := ts.do(t, http.MethodPost, "/api/appointments", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	appt := decode[models.Appointment](t, rec)

	rec = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/appointments/%s?patient_id=%d", appt.ID, patientID+1), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/appointments/%s?patient_id=%d", appt.ID, patientID), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/appointments", body)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[HealthResponse](t, rec)
	assert.NotEqual(t, statusUnhealthy, resp.Status)
	assert.Equal(t, statusHealthy, resp.Checks["database"])
	assert.Equal(t, Version, resp.Version)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodGet, "/health", "")

	rec := ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mindconnect_http_requests_total")
}

func TestWebhook(t *testing.T) {
	ts := newTestServer(t)
	update := `{"update_id": 10, "message": {"message_id": 1, "date": 1, "chat": {"id": 100, "type": "private"}, "text": "/start"}}`

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(update))
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(update))
	req.Header.Set(SecretTokenHeader, "s3cret")
	rec = httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, ts.updates.updates, 1)
	assert.Equal(t, int64(10), ts.updates.updates[0].ID)
	assert.Equal(t, int64(100), ts.updates.updates[0].Message.Chat.ID)

	req = httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{"))
	req.Header.Set(SecretTokenHeader, "s3cret")
	rec = httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecoveryHandler(t *testing.T) {
	ts := newTestServer(t)
	h := ts.srv.applyMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
