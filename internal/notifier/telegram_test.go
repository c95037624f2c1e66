package notifier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reminder-bot/internal/model"
)

type fakeRequester struct {
	mu       sync.Mutex
	calls    []tgbotapi.Params
	endpoint string
	err      error
	delay    time.Duration
}

func (f *fakeRequester) MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endpoint = endpoint
	f.calls = append(f.calls, params)
	if f.err != nil {
		return nil, f.err
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func TestSendToChat(t *testing.T) {
	api := &fakeRequester{}
	n := NewTelegram(api, 10, zerolog.Nop())

	require.NoError(t, n.Send(context.Background(), model.Destination{ChatID: "-100500"}, "buy bread"))

	require.Len(t, api.calls, 1)
	assert.Equal(t, "sendMessage", api.endpoint)
	assert.Equal(t, "-100500", api.calls[0]["chat_id"])
	assert.Equal(t, "buy bread", api.calls[0]["text"])
	_, hasThread := api.calls[0]["message_thread_id"]
	assert.False(t, hasThread)
}

func TestSendToThread(t *testing.T) {
	api := &fakeRequester{}
	n := NewTelegram(api, 10, zerolog.Nop())

	require.NoError(t, n.Send(context.Background(), model.Destination{ChatID: "42", ThreadID: "17"}, "x"))
	assert.Equal(t, "17", api.calls[0]["message_thread_id"])
}

func TestSendIgnoresNoneThread(t *testing.T) {
	api := &fakeRequester{}
	n := NewTelegram(api, 10, zerolog.Nop())

	require.NoError(t, n.Send(context.Background(), model.Destination{ChatID: "42", ThreadID: "None"}, "x"))
	_, hasThread := api.calls[0]["message_thread_id"]
	assert.False(t, hasThread)
}

func TestSendRejectsBadDestination(t *testing.T) {
	api := &fakeRequester{}
	n := NewTelegram(api, 10, zerolog.Nop())

	assert.Error(t, n.Send(context.Background(), model.Destination{ChatID: "chat-42"}, "x"))
	assert.Error(t, n.Send(context.Background(), model.Destination{ChatID: "1", ThreadID: "t"}, "x"))
	assert.Empty(t, api.calls)
}

func TestSendPropagatesAPIError(t *testing.T) {
	apiErr := errors.New("Forbidden: bot was blocked by the user")
	n := NewTelegram(&fakeRequester{err: apiErr}, 10, zerolog.Nop())

	err := n.Send(context.Background(), model.Destination{ChatID: "1"}, "x")
	assert.ErrorIs(t, err, apiErr)
}

func TestSendHonoursContextDeadline(t *testing.T) {
	n := NewTelegram(&fakeRequester{delay: time.Second}, 10, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := n.Send(ctx, model.Destination{ChatID: "1"}, "x")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestSendAbortsRequestAfterClientTimeout(t *testing.T) {
	aborted := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/getMe") {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"bot","username":"bot"}}`))
			return
		}
		select {
		case <-r.Context().Done():
			aborted <- struct{}{}
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	api, err := NewBotAPI("token", srv.URL+"/bot%s/%s", 100*time.Millisecond)
	require.NoError(t, err)
	n := NewTelegram(api, 10, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	err = n.Send(ctx, model.Destination{ChatID: "42"}, "hello")

	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	select {
	case <-aborted:
	case <-time.After(2 * time.Second):
		t.Fatal("request kept running after the client timeout")
	}
}
