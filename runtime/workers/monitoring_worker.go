package workers

import (
	"chat-relay/observability"
	"context"
	"time"
)

// MonitoringWorker refreshes the monitoring snapshot on a fixed interval.
type MonitoringWorker struct {
	manager  *observability.MonitoringManager
	interval time.Duration
}

func NewMonitoringWorker(manager *observability.MonitoringManager, interval time.Duration) *MonitoringWorker {
	return &MonitoringWorker{manager: manager, interval: interval}
}

func (w MonitoringWorker) Run(ctx context.Context) error {
	return w.manager.Run(ctx, w.interval)
}
