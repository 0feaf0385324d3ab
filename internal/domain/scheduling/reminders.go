package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/Anup697028/mediwise-chat/internal/platform/notification"
)

// ReminderLeads are how long before the start a patient is reminded, shortest
// first.
var ReminderLeads = []time.Duration{15 * time.Minute, time.Hour, 24 * time.Hour}

var errAlreadyReminded = errors.New("reminder already sent")

// ReminderSweep reminds patients of scheduled appointments starting within
// the next reminder lead. Each appointment gets at most one reminder per
// lead; when several leads are due at once only the shortest is sent. It
// returns the number of reminders sent.
func (s *Service) ReminderSweep(ctx context.Context) (int, error) {
	now := s.cfg.Clock.Now()
	all, err := s.appointments.List(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range all {
		a := &all[i]
		if a.Status != StatusScheduled {
			continue
		}
		start, err := a.StartsAt(s.cfg.Location)
		if err != nil {
			s.logger.Warn().Err(err).Msg("skipping appointment with unreadable start")
			continue
		}
		lead, ok := dueLead(start.Sub(now))
		if !ok || a.reminderSent(lead.String()) {
			continue
		}

		_, err = s.appointments.Update(ctx, a.ID, func(cur *Appointment) error {
			if cur.Status != StatusScheduled || cur.reminderSent(lead.String()) {
				return errAlreadyReminded
			}
			for _, l := range ReminderLeads {
				if l >= lead && !cur.reminderSent(l.String()) {
					cur.RemindersSent = append(cur.RemindersSent, l.String())
				}
			}
			return nil
		})
		if errors.Is(err, errAlreadyReminded) {
			continue
		}
		if err != nil {
			return sent, err
		}

		s.notify(ctx, notification.TemplateAppointmentReminder, a, nil, map[string]string{"lead": leadLabel(lead)})
		sent++
	}
	if sent > 0 {
		s.logger.Info().Int("sent", sent).Msg("appointment reminders sent")
	}
	return sent, nil
}

// dueLead returns the shortest lead that covers until.
func dueLead(until time.Duration) (time.Duration, bool) {
	if until <= 0 {
		return 0, false
	}
	for _, l := range ReminderLeads {
		if until <= l {
			return l, true
		}
	}
	return 0, false
}

func leadLabel(d time.Duration) string {
	switch {
	case d == time.Hour:
		return "1 hour"
	case d%time.Hour == 0:
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	default:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
}

// ReminderWorker runs ReminderSweep on a fixed interval.
type ReminderWorker struct {
	svc       *Service
	interval  time.Duration
	logger    zerolog.Logger
	scheduler *gocron.Scheduler
}

func NewReminderWorker(svc *Service, interval time.Duration, logger zerolog.Logger) *ReminderWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ReminderWorker{
		svc:      svc,
		interval: interval,
		logger:   logger.With().Str("component", "reminders").Logger(),
	}
}

// Start schedules the sweep and returns immediately. The first sweep runs
// right away.
func (w *ReminderWorker) Start(ctx context.Context) error {
	w.scheduler = gocron.NewScheduler(w.svc.cfg.Location)
	w.scheduler.SingletonModeAll()
	if _, err := w.scheduler.Every(w.interval).Do(w.run, ctx); err != nil {
		return fmt.Errorf("schedule reminder sweep: %w", err)
	}
	w.scheduler.StartAsync()
	w.logger.Info().Dur("interval", w.interval).Msg("appointment reminder worker started")
	return nil
}

func (w *ReminderWorker) run(ctx context.Context) {
	if _, err := w.svc.ReminderSweep(ctx); err != nil {
		w.logger.Error().Err(err).Msg("reminder sweep failed")
	}
}

// Stop halts the worker. It is safe to call before Start.
func (w *ReminderWorker) Stop() {
	if w.scheduler != nil {
		w.scheduler.Stop()
	}
}
