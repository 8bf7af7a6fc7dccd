package app

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Janitor periodically releases timers that outlived their game, e.g. a game
// completed by another instance or removed from storage.
type Janitor struct {
	cron   *cron.Cron
	logger *zap.Logger
}

func NewJanitor(controller *GameController, schedule string, logger *zap.Logger) (*Janitor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		controller.SweepTimers(context.Background())
	}); err != nil {
		return nil, fmt.Errorf("schedule timer sweep %q: %w", schedule, err)
	}
	return &Janitor{cron: c, logger: logger}, nil
}

func (j *Janitor) Start() {
	j.cron.Start()
	j.logger.Info("timer sweep scheduled", zap.Int("jobs", len(j.cron.Entries())))
}

// Stop waits for a running sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}
