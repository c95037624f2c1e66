package notifier

import (
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// NewBotAPI builds a Bot API client whose requests are aborted after timeout.
// endpoint is a tgbotapi endpoint format such as tgbotapi.APIEndpoint.
// Keep it separate from the long polling client: getUpdates holds requests
// open longer than any delivery timeout.
func NewBotAPI(token, endpoint string, timeout time.Duration) (*tgbotapi.BotAPI, error) {
	return tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: timeout})
}
