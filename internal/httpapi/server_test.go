package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"reminder-bot/internal/model"
	"reminder-bot/internal/repository"
	"reminder-bot/internal/service"
	"reminder-bot/internal/timeparse"
)

type MockReminders struct {
	mock.Mock
}

func (m *MockReminders) CreateReminder(ctx context.Context, dest model.Destination, text string, remindAt time.Time) (uint, error) {
	args := m.Called(ctx, dest, text, remindAt)
	return args.Get(0).(uint), args.Error(1)
}

func (m *MockReminders) CancelReminder(ctx context.Context, id uint) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockReminders) SnoozeReminder(ctx context.Context, id uint, delta time.Duration) (uint, error) {
	args := m.Called(ctx, id, delta)
	return args.Get(0).(uint), args.Error(1)
}

func (m *MockReminders) ListReminders(ctx context.Context, dest model.Destination) ([]model.Reminder, error) {
	args := m.Called(ctx, dest)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Reminder), args.Error(1)
}

func newTestRouter(t *testing.T, aliceDest model.Destination) (http.Handler, *MockReminders) {
	t.Helper()
	rem := new(MockReminders)
	t.Cleanup(func() { rem.AssertExpectations(t) })
	router := NewRouter(Deps{
		Reminders:        rem,
		Parser:           timeparse.New(time.UTC),
		AliceDestination: aliceDest,
		Location:         time.UTC,
		Log:              zerolog.Nop(),
	})
	return router, rem
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	h, _ := newTestRouter(t, model.Destination{})

	rr := do(t, h, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestRouter(t, model.Destination{})
	do(t, h, http.MethodGet, "/health", "")

	rr := do(t, h, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "reminder_http_requests_total")
}

func TestCreateReminder(t *testing.T) {
	h, rem := newTestRouter(t, model.Destination{})
	at := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	rem.On("CreateReminder", mock.Anything, model.Destination{ChatID: "-100", ThreadID: "4"}, "stand-up", mock.MatchedBy(at.Equal)).
		Return(uint(17), nil).Once()

	rr := do(t, h, http.MethodPost, "/api/reminders", `{"destination":"-100:4","text":"stand-up","remind_at":"2026-06-01T13:00:00+03:00"}`)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.JSONEq(t, `{"id":17}`, rr.Body.String())
}

func TestCreateReminderValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{`},
		{name: "missing text", body: `{"destination":"1","remind_at":"2026-06-01T10:00:00Z"}`},
		{name: "missing time", body: `{"destination":"1","text":"x"}`},
		{name: "missing destination", body: `{"text":"x","remind_at":"2026-06-01T10:00:00Z"}`},
		{name: "destination without chat", body: `{"destination":":5","text":"x","remind_at":"2026-06-01T10:00:00Z"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestRouter(t, model.Destination{})
			rr := do(t, h, http.MethodPost, "/api/reminders", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestCreateReminderRejectedByEngine(t *testing.T) {
	h, rem := newTestRouter(t, model.Destination{})
	rem.On("CreateReminder", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(uint(0), service.ErrInvalidReminder).Once()

	rr := do(t, h, http.MethodPost, "/api/reminders", `{"destination":"1","text":"  x ","remind_at":"2026-06-01T10:00:00Z"}`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListReminders(t *testing.T) {
	h, rem := newTestRouter(t, model.Destination{})
	at := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	rem.On("ListReminders", mock.Anything, model.Destination{ChatID: "42"}).Return([]model.Reminder{
		{ID: 1, ChatID: "42", Text: "a", RemindAt: at, CreatedAt: at.Add(-time.Hour)},
		{ID: 2, ChatID: "42", ThreadID: "9", Text: "b", RemindAt: at.Add(time.Minute), CreatedAt: at.Add(-time.Hour)},
	}, nil).Once()

	rr := do(t, h, http.MethodGet, "/api/reminders?destination=42", "")

	require.Equal(t, http.StatusOK, rr.Code)
	var got []reminderResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, uint(1), got[0].ID)
	assert.Equal(t, "42:9", got[1].Destination)
	assert.True(t, got[1].RemindAt.Equal(at.Add(time.Minute)))
}

func TestListRemindersEmptyIsArray(t *testing.T) {
	h, rem := newTestRouter(t, model.Destination{})
	rem.On("ListReminders", mock.Anything, model.Destination{ChatID: "42"}).Return(nil, nil).Once()

	rr := do(t, h, http.MethodGet, "/api/reminders?destination=42", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestListRemindersRequiresDestination(t *testing.T) {
	h, _ := newTestRouter(t, model.Destination{})

	rr := do(t, h, http.MethodGet, "/api/reminders", "")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListRemindersStorageFailure(t *testing.T) {
	h, rem := newTestRouter(t, model.Destination{})
	rem.On("ListReminders", mock.Anything, mock.Anything).
		Return(nil, &repository.StorageError{Op: "list reminders", Err: errors.New("disk I/O error")}).Once()

	rr := do(t, h, http.MethodGet, "/api/reminders?destination=42", "")

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "disk")
}

func TestCancelReminder(t *testing.T) {
	h, rem := newTestRouter(t, model.Destination{})
	rem.On("CancelReminder", mock.Anything, uint(5)).Return(nil).Once()
	rem.On("CancelReminder", mock.Anything, uint(6)).Return(service.ErrNotFound).Once()

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/api/reminders/5", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/api/reminders/6", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodDelete, "/api/reminders/abc", "").Code)
}

func TestSnoozeReminder(t *testing.T) {
	h, rem := newTestRouter(t, model.Destination{})
	rem.On("SnoozeReminder", mock.Anything, uint(5), 10*time.Minute).Return(uint(8), nil).Once()
	rem.On("SnoozeReminder", mock.Anything, uint(6), time.Minute).Return(uint(0), service.ErrNotFound).Once()

	rr := do(t, h, http.MethodPost, "/api/reminders/5/snooze", `{"delta_seconds":600}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"id":8}`, rr.Body.String())

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/api/reminders/6/snooze", `{"delta_seconds":60}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/reminders/5/snooze", `{}`).Code)
}

func TestSnoozeReminderRejectsOverflowingDelta(t *testing.T) {
	h, _ := newTestRouter(t, model.Destination{})

	for _, body := range []string{`{"delta_seconds":10000000000}`, `{"delta_seconds":-10000000000}`} {
		rr := do(t, h, http.MethodPost, "/api/reminders/5/snooze", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
	}
}

func aliceText(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	require.Equal(t, http.StatusOK, rr.Code)
	var resp aliceResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "1.0", resp.Version)
	assert.False(t, resp.Response.EndSession)
	return resp.Response.Text
}

func TestAliceGreeting(t *testing.T) {
	h, _ := newTestRouter(t, model.Destination{ChatID: "1"})

	rr := do(t, h, http.MethodPost, "/alice", `{"request":{"original_utterance":"  "},"version":"1.0"}`)

	assert.Equal(t, "Привет! Скажи: напомни купить хлеб через 10 минут", aliceText(t, rr))
}

func TestAliceNoTime(t *testing.T) {
	h, _ := newTestRouter(t, model.Destination{ChatID: "1"})

	rr := do(t, h, http.MethodPost, "/alice", `{"request":{"original_utterance":"купить хлеб"}}`)

	assert.Equal(t, "Не поняла, когда нужно напомнить. Повтори время, пожалуйста.", aliceText(t, rr))
}

func TestAliceWithoutLinkedChat(t *testing.T) {
	h, _ := newTestRouter(t, model.Destination{})

	rr := do(t, h, http.MethodPost, "/alice", `{"request":{"original_utterance":"напомни купить хлеб через 10 минут"}}`)

	assert.Equal(t, "Навык настроен, но не привязан Telegram-чат. Свяжи аккаунты.", aliceText(t, rr))
}

func TestAliceCreatesReminder(t *testing.T) {
	dest := model.Destination{ChatID: "-100", ThreadID: "3"}
	h, rem := newTestRouter(t, dest)
	before := time.Now()
	rem.On("CreateReminder", mock.Anything, dest, "Купить хлеб", mock.MatchedBy(func(at time.Time) bool {
		return !at.Before(before.Add(10*time.Minute).Truncate(time.Minute)) && at.Before(time.Now().Add(11*time.Minute))
	})).Return(uint(4), nil).Once()

	rr := do(t, h, http.MethodPost, "/alice", `{"request":{"original_utterance":"напомни купить хлеб через 10 минут"}}`)

	text := aliceText(t, rr)
	assert.True(t, strings.HasPrefix(text, "Хорошо, напомню напомни купить хлеб через 10 минут в "), text)
}

func TestAliceMalformedBodyGreets(t *testing.T) {
	h, _ := newTestRouter(t, model.Destination{ChatID: "1"})

	rr := do(t, h, http.MethodPost, "/alice", `not json`)

	assert.Equal(t, "Привет! Скажи: напомни купить хлеб через 10 минут", aliceText(t, rr))
}
