package model

import "time"

// Reminder is one pending delivery. A row exists only while the reminder is
// pending: firing, cancelling and snoozing all delete it.
type Reminder struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	ChatID      string    `gorm:"index:idx_reminders_destination;not null"`
	ThreadID    string    `gorm:"index:idx_reminders_destination"`
	Text        string    `gorm:"not null"`
	RemindAt    time.Time `gorm:"index;not null"`
	CreatedAt   time.Time `gorm:"not null"`
	TimerHandle string
}

// Destination returns where the reminder is delivered.
func (r Reminder) Destination() Destination {
	return Destination{ChatID: r.ChatID, ThreadID: r.ThreadID}
}
