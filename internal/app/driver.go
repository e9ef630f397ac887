package app

import (
	"context"
	"log/slog"
	"time"
)

const (
	defaultDriverInterval = 250 * time.Millisecond
	defaultRetention      = time.Hour
)

// Driver is the liveness mechanism of every room: it closes questions whose deadline passed and
// tears down finished or never-started rooms after the retention period. Player connections play
// no part in it.
type Driver struct {
	coordinator *Coordinator
	interval    time.Duration
	retention   time.Duration
	logger      *slog.Logger
}

func NewDriver(coordinator *Coordinator, interval, retention time.Duration, logger *slog.Logger) *Driver {
	if interval <= 0 {
		interval = defaultDriverInterval
	}
	if retention <= 0 {
		retention = defaultRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		coordinator: coordinator,
		interval:    interval,
		retention:   retention,
		logger:      logger,
	}
}

// Run ticks until ctx is done.
func (d *Driver) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	d.logger.Info("room driver started", "interval", d.interval, "retention", d.retention)
	for {
		select {
		case <-ticker.C:
			d.Tick()
		case <-ctx.Done():
			return
		}
	}
}

// Tick performs one pass and returns how many questions were advanced by timeout.
func (d *Driver) Tick() int {
	now := d.coordinator.now()
	advanced := 0
	for _, room := range d.coordinator.rooms.List() {
		index, due := room.timeoutDue(now)
		if !due {
			continue
		}
		if d.coordinator.advanceOnTimeout(room, index) {
			advanced++
		}
	}
	d.coordinator.sweep(now.Add(-d.retention))
	return advanced
}
