package jobs

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/labscribe/labscribe/backend/internal/logger"
	"github.com/labscribe/labscribe/backend/internal/services"
)

// SessionSweeper periodically deactivates sessions that exceeded the maximum
// age. Expired sessions are already rejected at validation time, so the sweep
// only keeps the table tidy and the admin dashboard honest.
type SessionSweeper struct {
	sessions *services.SessionService
	maxAge   time.Duration
	cron     *cron.Cron
}

func NewSessionSweeper(sessions *services.SessionService, maxAge time.Duration) *SessionSweeper {
	return &SessionSweeper{
		sessions: sessions,
		maxAge:   maxAge,
		cron:     cron.New(),
	}
}

// Start schedules the sweep and runs one pass immediately so a restart does
// not leave stale rows active until the first tick.
func (s *SessionSweeper) Start() error {
	if _, err := s.cron.AddFunc("@every 15m", s.run); err != nil {
		return err
	}
	s.cron.Start()
	go s.run()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *SessionSweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *SessionSweeper) run() {
	n, err := s.sessions.SweepStale(s.maxAge)
	if err != nil {
		logger.Log().WithError(err).Warn("session sweep failed")
		return
	}
	if n > 0 {
		logger.Log().WithField("deactivated", n).Info("swept stale sessions")
	}
}
