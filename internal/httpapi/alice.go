package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
)

const aliceProtocolVersion = "1.0"

type aliceRequest struct {
	Request struct {
		Command           string `json:"command"`
		OriginalUtterance string `json:"original_utterance"`
	} `json:"request"`
	Session struct {
		SessionID string `json:"session_id"`
		UserID    string `json:"user_id"`
	} `json:"session"`
	Version string `json:"version"`
}

type aliceResponse struct {
	Version  string       `json:"version"`
	Response aliceMessage `json:"response"`
}

type aliceMessage struct {
	Text       string `json:"text"`
	EndSession bool   `json:"end_session"`
}

// alice handles the Yandex Alice skill webhook. Every outcome is a 200 with a
// spoken reply; the skill protocol has no error responses.
func (h *handler) alice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req aliceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Warn().Err(err).Msg("decode alice request")
	}

	utterance := strings.TrimSpace(req.Request.OriginalUtterance)
	if utterance == "" {
		h.aliceReply(w, "Привет! Скажи: напомни купить хлеб через 10 минут")
		return
	}

	res := h.parser.Parse(utterance, h.now())
	if !res.Found {
		h.aliceReply(w, "Не поняла, когда нужно напомнить. Повтори время, пожалуйста.")
		return
	}

	if h.aliceDest.IsZero() {
		h.log.Warn().Msg("alice request without a linked chat, CHAT_ID is not set")
		h.aliceReply(w, "Навык настроен, но не привязан Telegram-чат. Свяжи аккаунты.")
		return
	}

	text := res.Remainder
	if text == "" {
		text = utterance
	}
	id, err := h.reminders.CreateReminder(ctx, h.aliceDest, text, res.When)
	if err != nil {
		h.log.Error().Err(err).Str("session_id", req.Session.SessionID).Msg("create reminder from alice")
		h.aliceReply(w, "Не получилось сохранить напоминание. Попробуй ещё раз.")
		return
	}

	h.log.Info().Uint("reminder_id", id).Str("session_id", req.Session.SessionID).Msg("reminder created from alice")
	h.aliceReply(w, "Хорошо, напомню "+utterance+" в "+res.When.In(h.loc).Format("15:04"))
}

func (h *handler) aliceReply(w http.ResponseWriter, text string) {
	h.writeJSON(w, http.StatusOK, aliceResponse{
		Version:  aliceProtocolVersion,
		Response: aliceMessage{Text: text, EndSession: false},
	})
}
