package bot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"reminder-bot/internal/model"
	"reminder-bot/internal/service"
	"reminder-bot/internal/timeparse"
)

const (
	cbDeletePrefix = "delete:"
	cbSnoozePrefix = "snooze:"

	defaultSnoozeMinutes = 10
	maxListButtons       = 20

	// maxSnoozeMinutes keeps minutes*time.Minute inside time.Duration.
	maxSnoozeMinutes = math.MaxInt64 / int64(time.Minute)
)

const (
	menuLabelList   = "🗓 Список напоминаний"
	menuLabelAdd    = "➕ Добавить напоминание"
	menuLabelDelete = "❌ Удалить напоминание"
)

// API is the subset of tgbotapi.BotAPI used by the bot.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Reminders is the scheduling engine as seen by the chat adapter.
type Reminders interface {
	CreateReminder(ctx context.Context, dest model.Destination, text string, remindAt time.Time) (uint, error)
	CancelReminder(ctx context.Context, id uint) error
	SnoozeReminder(ctx context.Context, id uint, delta time.Duration) (uint, error)
	ListReminders(ctx context.Context, dest model.Destination) ([]model.Reminder, error)
}

// Bot turns Telegram messages into reminder operations.
type Bot struct {
	api       API
	reminders Reminders
	parser    *timeparse.Parser
	loc       *time.Location
	log       zerolog.Logger
	now       func() time.Time
}

func New(api API, reminders Reminders, parser *timeparse.Parser, loc *time.Location, log zerolog.Logger) *Bot {
	return &Bot{
		api:       api,
		reminders: reminders,
		parser:    parser,
		loc:       loc,
		log:       log,
		now:       time.Now,
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info().Msg("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				b.log.Error().Err(err).Msg("handle callback")
			}
		case update.Message != nil:
			if err := b.handleMessage(ctx, update.Message); err != nil {
				b.log.Error().Err(err).Msg("handle message")
			}
		}
	}

	return ctx.Err()
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.Chat == nil || strings.TrimSpace(msg.Text) == "" {
		return nil
	}

	if msg.IsCommand() {
		b.log.Info().Int64("chat_id", msg.Chat.ID).Str("command", msg.Command()).Str("args", msg.CommandArguments()).Msg("command")
		return b.handleCommand(ctx, msg)
	}

	switch strings.TrimSpace(msg.Text) {
	case menuLabelList:
		return b.handleList(ctx, msg.Chat.ID)
	case menuLabelAdd:
		return b.sendText(msg.Chat.ID, "Напиши, что и когда напомнить, например: «напомни купить хлеб через 10 минут».")
	case menuLabelDelete:
		return b.sendText(msg.Chat.ID, "Отправь /delete &lt;id&gt;. Номера напоминаний есть в списке /list.")
	}

	return b.handleFreeText(ctx, msg)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start", "help":
		return b.handleStart(msg)
	case "list":
		return b.handleList(ctx, msg.Chat.ID)
	case "delete":
		return b.handleDelete(ctx, msg)
	case "snooze":
		return b.handleSnooze(ctx, msg)
	default:
		return b.sendText(msg.Chat.ID, "Команда не поддерживается. Загляни в /help.")
	}
}

func (b *Bot) handleStart(msg *tgbotapi.Message) error {
	text := "Привет! 👋 Я бот-напоминалка.\n\n" +
		"Можешь написать: «напомни купить хлеб через 10 минут»\n" +
		"или выбрать действие кнопками ниже 👇\n\n" +
		"• /list — активные напоминания\n" +
		"• /delete &lt;id&gt; — удалить напоминание\n" +
		"• /snooze &lt;id&gt; &lt;минуты&gt; — отложить напоминание"
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleList(ctx context.Context, chatID int64) error {
	reminders, err := b.reminders.ListReminders(ctx, chatDestination(chatID))
	if err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("list reminders")
		return b.sendText(chatID, "Не удалось получить список напоминаний.")
	}
	text := formatList(reminders, b.loc)
	if len(reminders) == 0 {
		return b.sendText(chatID, text)
	}
	return b.sendWithReplyMarkup(chatID, text, listKeyboard(reminders))
}

func (b *Bot) handleDelete(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.Fields(msg.CommandArguments())
	if len(args) < 1 {
		return b.sendText(msg.Chat.ID, "Использование: /delete &lt;id&gt;")
	}
	id, err := parseReminderID(args[0])
	if err != nil {
		return b.sendText(msg.Chat.ID, "ID напоминания должен быть числом.")
	}
	return b.cancel(ctx, msg.Chat.ID, id)
}

func (b *Bot) handleSnooze(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.Fields(msg.CommandArguments())
	if len(args) < 2 {
		return b.sendText(msg.Chat.ID, "Использование: /snooze &lt;id&gt; &lt;минуты&gt;")
	}
	id, err := parseReminderID(args[0])
	if err != nil {
		return b.sendText(msg.Chat.ID, "ID напоминания должен быть числом.")
	}
	minutes, err := strconv.Atoi(args[1])
	if err != nil {
		return b.sendText(msg.Chat.ID, "Количество минут должно быть числом.")
	}
	return b.snooze(ctx, msg.Chat.ID, id, minutes)
}

// handleFreeText treats any other message as a new reminder.
func (b *Bot) handleFreeText(ctx context.Context, msg *tgbotapi.Message) error {
	res := b.parser.Parse(msg.Text, b.now())
	if !res.Found {
		return b.sendText(msg.Chat.ID, "Не понял время 😅 Попробуй: «напомни купить хлеб через 10 минут»")
	}
	if res.Remainder == "" {
		return b.sendText(msg.Chat.ID, "Не понял, о чём напомнить. Попробуй: «напомни купить хлеб через 10 минут»")
	}

	id, err := b.reminders.CreateReminder(ctx, chatDestination(msg.Chat.ID), res.Remainder, res.When)
	if err != nil {
		b.log.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("create reminder")
		return b.sendText(msg.Chat.ID, "Не удалось сохранить напоминание.")
	}
	b.log.Info().Uint("reminder_id", id).Int64("chat_id", msg.Chat.ID).Msg("reminder created from chat")
	return b.sendText(msg.Chat.ID, formatCreated(res.Remainder, res.When, b.loc))
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.Message == nil || cb.Message.Chat == nil {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Warn().Err(err).Msg("callback ack")
	}

	chatID := cb.Message.Chat.ID
	data := cb.Data
	switch {
	case strings.HasPrefix(data, cbDeletePrefix):
		id, err := parseReminderID(strings.TrimPrefix(data, cbDeletePrefix))
		if err != nil {
			return nil
		}
		return b.cancel(ctx, chatID, id)
	case strings.HasPrefix(data, cbSnoozePrefix):
		rawID, rawMinutes, ok := strings.Cut(strings.TrimPrefix(data, cbSnoozePrefix), ":")
		if !ok {
			return nil
		}
		id, err := parseReminderID(rawID)
		if err != nil {
			return nil
		}
		minutes, err := strconv.Atoi(rawMinutes)
		if err != nil {
			return nil
		}
		return b.snooze(ctx, chatID, id, minutes)
	default:
		return nil
	}
}

func (b *Bot) cancel(ctx context.Context, chatID int64, id uint) error {
	err := b.reminders.CancelReminder(ctx, id)
	switch {
	case errors.Is(err, service.ErrNotFound):
		return b.sendText(chatID, "Напоминание не найдено.")
	case err != nil:
		b.log.Error().Err(err).Uint("reminder_id", id).Msg("cancel reminder")
		return b.sendText(chatID, "Ошибка при удалении.")
	}
	return b.sendText(chatID, fmt.Sprintf("✅ Напоминание %d удалено.", id))
}

func (b *Bot) snooze(ctx context.Context, chatID int64, id uint, minutes int) error {
	if int64(minutes) > maxSnoozeMinutes || int64(minutes) < -maxSnoozeMinutes {
		return b.sendText(chatID, "Слишком большой срок. Укажи меньшее количество минут.")
	}
	newID, err := b.reminders.SnoozeReminder(ctx, id, time.Duration(minutes)*time.Minute)
	switch {
	case errors.Is(err, service.ErrNotFound):
		return b.sendText(chatID, "Напоминание не найдено.")
	case err != nil:
		b.log.Error().Err(err).Uint("reminder_id", id).Msg("snooze reminder")
		return b.sendText(chatID, "Ошибка при отложении.")
	}
	return b.sendText(chatID, fmt.Sprintf("✅ Напоминание %d отложено на %d минут (новый id %d).", id, minutes, newID))
}

func (b *Bot) sendText(chatID int64, text string) error {
	return b.sendWithReplyMarkup(chatID, text, mainMenuKeyboard())
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func chatDestination(chatID int64) model.Destination {
	return model.Destination{ChatID: strconv.FormatInt(chatID, 10)}
}

func parseReminderID(raw string) (uint, error) {
	value, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(value), nil
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelList),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelAdd),
			tgbotapi.NewKeyboardButton(menuLabelDelete),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = false
	return kb
}

func listKeyboard(reminders []model.Reminder) tgbotapi.InlineKeyboardMarkup {
	if len(reminders) > maxListButtons {
		reminders = reminders[:maxListButtons]
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(reminders))
	for _, r := range reminders {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("❌ %d. %s", r.ID, shortText(r.Text, 24)),
				fmt.Sprintf("%s%d", cbDeletePrefix, r.ID),
			),
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("⏰ +%d мин", defaultSnoozeMinutes),
				fmt.Sprintf("%s%d:%d", cbSnoozePrefix, r.ID, defaultSnoozeMinutes),
			),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
