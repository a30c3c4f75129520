// Package scheduler runs the reminder delivery loop: a periodic scan of
// reminders due inside a look-ahead window, fan-out to the mail sink, and
// idempotent cleanup. Delivery is at-least-once; a crash between send and
// delete re-notifies on restart.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gatherly/videochat/internal/v1/eventstore"
	"github.com/gatherly/videochat/internal/v1/logging"
	"github.com/gatherly/videochat/internal/v1/metrics"
)

// ReminderStore is the slice of the event store the scheduler needs.
type ReminderStore interface {
	DueReminders(ctx context.Context, from, to time.Time) ([]*eventstore.Reminder, error)
	Event(ctx context.Context, id int64) (*eventstore.Event, error)
	DeleteReminder(ctx context.Context, id int64) error
}

// Mailer is the mail sink contract.
type Mailer interface {
	Send(ctx context.Context, subject, recipient, plainBody, htmlBody string) error
}

// Scheduler scans for due reminders every interval and looks ahead window
// into the future. With the defaults (60s tick, 5m window) every reminder is
// inspected several times before its deadline.
type Scheduler struct {
	store    ReminderStore
	mailer   Mailer
	interval time.Duration
	window   time.Duration
	now      func() time.Time
}

// New creates a Scheduler. Non-positive interval or window fall back to the
// 60s/5m defaults.
func New(store ReminderStore, mailer Mailer, interval, window time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &Scheduler{
		store:    store,
		mailer:   mailer,
		interval: interval,
		window:   window,
		now:      time.Now,
	}
}

// Run blocks until ctx is cancelled. Ticks never overlap: the ticker only
// fires again after the previous tick returns, and an in-flight tick
// finishes its current reminder before Run exits.
func (s *Scheduler) Run(ctx context.Context) {
	logging.Info(ctx, "Reminder scheduler started",
		zap.Duration("interval", s.interval),
		zap.Duration("window", s.window))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info(ctx, "Reminder scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scan-and-send pass. Errors are contained: nothing a tick
// does can take the loop down.
func (s *Scheduler) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error(ctx, "Recovered from panic in scheduler tick", zap.Any("panic", r))
		}
		metrics.SchedulerTicks.Inc()
	}()

	now := s.now().UTC()
	reminders, err := s.store.DueReminders(ctx, now, now.Add(s.window))
	if err != nil {
		logging.Error(ctx, "Failed to read due reminders", zap.Error(err))
		return
	}

	if len(reminders) == 0 {
		logging.Info(ctx, "No upcoming reminders to send.")
		return
	}

	var sent, failed, skipped int
	for _, reminder := range reminders {
		email := strings.TrimSpace(reminder.UserEmail)
		if email == "" {
			skipped++
			logging.Warn(ctx, "Skipping reminder due to invalid email",
				zap.Int64("reminderId", reminder.ID),
				zap.Int64("eventId", reminder.EventID))
			continue
		}

		if err := s.deliver(ctx, reminder, email); err != nil {
			// Row stays; retried next tick.
			failed++
			metrics.RemindersSent.WithLabelValues("error").Inc()
			logging.Error(ctx, "Failed to deliver reminder",
				zap.Int64("reminderId", reminder.ID),
				zap.String("recipient", logging.RedactEmail(email)),
				zap.Error(err))
			continue
		}

		if err := s.store.DeleteReminder(ctx, reminder.ID); err != nil {
			logging.Error(ctx, "Failed to delete sent reminder",
				zap.Int64("reminderId", reminder.ID), zap.Error(err))
		}
		sent++
		metrics.RemindersSent.WithLabelValues("sent").Inc()
	}

	logging.Info(ctx, "Reminder tick complete",
		zap.Int("sent", sent), zap.Int("failed", failed), zap.Int("skipped", skipped))
}

func (s *Scheduler) deliver(ctx context.Context, reminder *eventstore.Reminder, email string) error {
	event, err := s.store.Event(ctx, reminder.EventID)
	if err != nil {
		return fmt.Errorf("load event: %w", err)
	}

	subject, plain, html := composeReminder(event, reminder, email)
	return s.mailer.Send(ctx, subject, email, plain, html)
}

const reminderHTMLTemplate = `<html>
<body style="font-family: Arial, sans-serif; background-color: #f4f4f4; margin: 0; padding: 20px;">
	<div style="background-color: #ffffff; border-radius: 8px; padding: 20px; box-shadow: 0 2px 10px rgba(0, 0, 0, 0.1);">
		<h2 style="color: #333;">Reminder: Your Event '%s' is Happening Soon!</h2>
		<p style="color: #555; line-height: 1.6;">Dear %s,</p>
		<p style="color: #555; line-height: 1.6;">This is a reminder for the upcoming event:</p>
		<ul style="list-style-type: none; padding: 0;">
			<li style="margin: 10px 0; padding: 10px; background-color: #f9f9f9; border-left: 4px solid #007BFF;">
				<strong>Event Title:</strong> %s
			</li>
			<li style="margin: 10px 0; padding: 10px; background-color: #f9f9f9; border-left: 4px solid #007BFF;">
				<strong>Date &amp; Time:</strong> %s
			</li>
			<li style="margin: 10px 0; padding: 10px; background-color: #f9f9f9; border-left: 4px solid #007BFF;">
				<strong>Location:</strong> %s
			</li>
			<li style="margin: 10px 0; padding: 10px; background-color: #f9f9f9; border-left: 4px solid #007BFF;">
				<strong>Room ID:</strong> <strong style="color: blue; background-color: #e7f3ff; padding: 5px; border-radius: 3px;">%d</strong>
			</li>
		</ul>
		<p style="color: #555; line-height: 1.6;">We look forward to your participation! Please make sure to mark your calendar.</p>
		<p style="font-weight: bold; color: #555;">Best regards,</p>
		<p style="color: #555;">The Event Team</p>
	</div>
</body>
</html>`

// composeReminder renders the subject and both body alternatives from the
// event fields. The room id in the body doubles as the videochat room key.
func composeReminder(event *eventstore.Event, reminder *eventstore.Reminder, email string) (subject, plain, html string) {
	location := event.Location
	if location == "" {
		location = "Not specified"
	}
	when := reminder.ReminderTime.UTC().Format("2006-01-02 at 15:04:05")

	subject = fmt.Sprintf("Reminder: Your Event '%s' is Happening Soon!", event.Title)

	plain = fmt.Sprintf(
		"Dear %s,\n\nThis is a reminder for the upcoming event:\n\n"+
			"Event Title: %s\nDate & Time: %s\nLocation: %s\nRoom ID: %d\n\n"+
			"We look forward to your participation! Please make sure to mark your calendar.\n\n"+
			"Best regards,\nThe Event Team\n",
		email, event.Title, when, location, event.ID)

	html = fmt.Sprintf(reminderHTMLTemplate,
		event.Title, email, event.Title, when, location, event.ID)

	return subject, plain, html
}
