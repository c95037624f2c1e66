package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"reminder-bot/internal/model"
)

// ReminderRepository is the durable store of pending reminders.
type ReminderRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewReminderRepository(db *gorm.DB) *ReminderRepository {
	return &ReminderRepository{db: db, now: time.Now}
}

// Insert persists a new reminder and returns its id. Ids come from an
// AUTOINCREMENT column and are never handed out twice.
func (r *ReminderRepository) Insert(ctx context.Context, dest model.Destination, text string, remindAt time.Time) (uint, error) {
	reminder := model.Reminder{
		ChatID:    dest.ChatID,
		ThreadID:  dest.ThreadID,
		Text:      text,
		RemindAt:  remindAt.UTC(),
		CreatedAt: r.now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&reminder).Error; err != nil {
		return 0, storageErr("insert reminder", err)
	}
	return reminder.ID, nil
}

func (r *ReminderRepository) Get(ctx context.Context, id uint) (*model.Reminder, error) {
	var reminder model.Reminder
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&reminder).Error
	switch {
	case err == nil:
		normalize(&reminder)
		return &reminder, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrNotFound
	default:
		return nil, storageErr("get reminder", err)
	}
}

// Delete removes the reminder and reports whether this call removed the row.
// Concurrent callers race on the row; exactly one of them gets true.
func (r *ReminderRepository) Delete(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Reminder{})
	if res.Error != nil {
		return false, storageErr("delete reminder", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ListPending returns every stored reminder, earliest first.
func (r *ReminderRepository) ListPending(ctx context.Context) ([]model.Reminder, error) {
	var reminders []model.Reminder
	if err := r.db.WithContext(ctx).Order("remind_at ASC, id ASC").Find(&reminders).Error; err != nil {
		return nil, storageErr("list pending reminders", err)
	}
	for i := range reminders {
		normalize(&reminders[i])
	}
	return reminders, nil
}

// ListByDestination returns reminders for a chat, earliest first. A thread id
// narrows the result to that thread; without one the whole chat is listed.
func (r *ReminderRepository) ListByDestination(ctx context.Context, dest model.Destination) ([]model.Reminder, error) {
	q := r.db.WithContext(ctx).Where("chat_id = ?", dest.ChatID)
	if dest.ThreadID != "" {
		q = q.Where("thread_id = ?", dest.ThreadID)
	}
	var reminders []model.Reminder
	if err := q.Order("remind_at ASC, id ASC").Find(&reminders).Error; err != nil {
		return nil, storageErr("list reminders", err)
	}
	for i := range reminders {
		normalize(&reminders[i])
	}
	return reminders, nil
}

func (r *ReminderRepository) SetTimerHandle(ctx context.Context, id uint, handle string) error {
	res := r.db.WithContext(ctx).Model(&model.Reminder{}).Where("id = ?", id).Update("timer_handle", handle)
	if res.Error != nil {
		return storageErr("set timer handle", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func normalize(r *model.Reminder) {
	r.RemindAt = r.RemindAt.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
}
