package notifier

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"reminder-bot/internal/model"
)

// Requester is the part of tgbotapi.BotAPI the notifier needs. Raw requests
// are used because the typed message config has no forum thread field.
type Requester interface {
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
}

// Telegram sends reminder messages through the Bot API.
type Telegram struct {
	api     Requester
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewTelegram builds a notifier limited to ratePerSec messages per second.
func NewTelegram(api Requester, ratePerSec int, log zerolog.Logger) *Telegram {
	if ratePerSec <= 0 {
		ratePerSec = 20
	}
	return &Telegram{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		log:     log,
	}
}

// Send delivers text to the destination. It gives up when ctx expires, even
// if the HTTP call is still running.
func (t *Telegram) Send(ctx context.Context, dest model.Destination, text string) error {
	params, err := messageParams(dest, text)
	if err != nil {
		return err
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := t.api.MakeRequest("sendMessage", params)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send message to %s: %w", dest, err)
		}
		t.log.Debug().Str("destination", dest.String()).Msg("message sent")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send message to %s: %w", dest, ctx.Err())
	}
}

func messageParams(dest model.Destination, text string) (tgbotapi.Params, error) {
	chatID, err := strconv.ParseInt(dest.ChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("chat id %q: %w", dest.ChatID, err)
	}
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", chatID)
	if dest.ThreadID != "" && dest.ThreadID != "None" {
		threadID, err := strconv.Atoi(dest.ThreadID)
		if err != nil {
			return nil, fmt.Errorf("thread id %q: %w", dest.ThreadID, err)
		}
		params.AddNonZero("message_thread_id", threadID)
	}
	params["text"] = text
	return params, nil
}
