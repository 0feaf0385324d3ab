package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/Anup697028/mediwise-chat/internal/domain/identity"
	"github.com/Anup697028/mediwise-chat/internal/platform/clock"
)

// AvailableTimes lists the "HH:MM" start times a doctor offers on date, on
// the half hour, from the weekly template. The end of each window is itself
// a start time. Existing bookings are not subtracted.
func (s *Service) AvailableTimes(ctx context.Context, doctorID, date string) ([]string, error) {
	if err := s.cfg.Latency.Wait(ctx, clock.DelayShort); err != nil {
		return nil, err
	}
	day, err := time.Parse(DateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidAppointment)
	}
	doc, err := s.findDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	return Slots(doc.Availability[day.Weekday().String()])
}

// Slots expands windows into half-hour start times.
func Slots(windows []identity.TimeRange) ([]string, error) {
	out := []string{}
	for _, w := range windows {
		startH, startM, err := parseClock(w.Start)
		if err != nil {
			return nil, err
		}
		endH, endM, err := parseClock(w.End)
		if err != nil {
			return nil, err
		}
		for h := startH; h <= endH; h++ {
			for _, m := range [...]int{0, 30} {
				if h == startH && m < startM {
					continue
				}
				if h == endH && m > endM {
					continue
				}
				out = append(out, fmt.Sprintf("%02d:%02d", h, m))
			}
		}
	}
	return out, nil
}

func parseClock(s string) (int, int, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}
