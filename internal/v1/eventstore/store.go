// Package eventstore is the relational store for events and their reminder
// rows. The reminder scheduler reads and deletes here; the control routes
// create rows.
package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Event is a read-mostly row describing a scheduled event.
type Event struct {
	ID             int64
	Title          string
	Date           time.Time
	Description    string
	Location       string
	OrganizerEmail string
}

// Reminder is one pending notification. Deleted after the mail sink accepts
// the notification email.
type Reminder struct {
	ID           int64
	EventID      int64
	UserEmail    string
	ReminderTime time.Time
}

// Store wraps the SQL connection pool.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	title           TEXT NOT NULL,
	date            TIMESTAMP NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	location        TEXT NOT NULL DEFAULT '',
	organizer_email TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS reminders (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id      INTEGER NOT NULL REFERENCES events(id) ON DELETE CASCADE,
	user_email    TEXT NOT NULL,
	reminder_time TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reminders_time ON reminders(reminder_time);
`

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// CreateEvent inserts a new event and returns its id.
func (s *Store) CreateEvent(ctx context.Context, event *Event) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO events (title, date, description, location, organizer_email)
		VALUES (?, ?, ?, ?, ?)
	`, event.Title, event.Date.UTC(), event.Description, event.Location, event.OrganizerEmail)
	if err != nil {
		return 0, fmt.Errorf("failed to create event: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read event id: %w", err)
	}
	return id, nil
}

// Event retrieves an event by id.
func (s *Store) Event(ctx context.Context, id int64) (*Event, error) {
	event := &Event{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, date, description, location, organizer_email
		FROM events
		WHERE id = ?
	`, id).Scan(&event.ID, &event.Title, &event.Date, &event.Description,
		&event.Location, &event.OrganizerEmail)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("event not found: %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	return event, nil
}

// CreateReminder inserts a reminder row. Time validation against the current
// clock happens at the API boundary, not here.
func (s *Store) CreateReminder(ctx context.Context, reminder *Reminder) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO reminders (event_id, user_email, reminder_time)
		VALUES (?, ?, ?)
	`, reminder.EventID, reminder.UserEmail, reminder.ReminderTime.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to create reminder: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read reminder id: %w", err)
	}
	return id, nil
}

// DueReminders returns all reminders whose reminder_time falls inside
// [from, to], ordered by reminder_time.
func (s *Store) DueReminders(ctx context.Context, from, to time.Time) ([]*Reminder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, user_email, reminder_time
		FROM reminders
		WHERE reminder_time >= ? AND reminder_time <= ?
		ORDER BY reminder_time
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list due reminders: %w", err)
	}
	defer rows.Close()

	var reminders []*Reminder
	for rows.Next() {
		reminder := &Reminder{}
		if err := rows.Scan(&reminder.ID, &reminder.EventID, &reminder.UserEmail, &reminder.ReminderTime); err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		reminders = append(reminders, reminder)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reminders: %w", err)
	}

	return reminders, nil
}

// DeleteReminder removes a reminder row. Deleting an already-deleted row is
// not an error; the scheduler may race a restart.
func (s *Store) DeleteReminder(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM reminders WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete reminder: %w", err)
	}
	return nil
}

// Ping verifies database connectivity. Used by readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
