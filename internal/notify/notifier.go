package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/darshan-rambhia/voltline/internal/model"
	"github.com/darshan-rambhia/voltline/internal/syncer"
)

// Severity levels carried by notifications.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// KindSyncRun marks notifications produced from a finished sync run.
const KindSyncRun = "sync_run"

// Target is a provider plus the run statuses it wants to hear about.
type Target struct {
	Provider Provider
	// On lists the statuses that trigger a send. Empty means partial and failed.
	On []model.RunStatus
}

func (t Target) wants(status model.RunStatus) bool {
	on := t.On
	if len(on) == 0 {
		on = []model.RunStatus{model.StatusPartial, model.StatusFailed}
	}
	for _, s := range on {
		if s == status {
			return true
		}
	}
	return false
}

// Notifier fans run outcomes out to its targets.
type Notifier struct {
	targets []Target
	timeout time.Duration
}

// NewNotifier creates a notifier over targets.
func NewNotifier(targets ...Target) *Notifier {
	return &Notifier{targets: targets, timeout: 2 * sendTimeout}
}

// Len returns the number of configured targets.
func (n *Notifier) Len() int { return len(n.targets) }

// OnSyncComplete is registered as a syncer completion hook. Delivery errors
// are logged and never affect the run.
func (n *Notifier) OnSyncComplete(res syncer.Result) {
	if len(n.targets) == 0 {
		return
	}
	notif := FromResult(res)

	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()
	for _, t := range n.targets {
		if !t.wants(notif.Status) {
			continue
		}
		if err := t.Provider.Send(ctx, notif); err != nil {
			slog.Error("failed to send notification", "provider", t.Provider.Name(), "run_id", notif.RunID, "error", err)
			continue
		}
		slog.Debug("notification sent", "provider", t.Provider.Name(), "run_id", notif.RunID)
	}
}

// FromResult builds the notification describing a finished run.
func FromResult(res syncer.Result) model.Notification {
	run := res.Run
	n := model.Notification{
		Kind:      KindSyncRun,
		RunID:     run.RunID,
		SyncType:  run.SyncType,
		Status:    run.Status,
		Timestamp: time.UnixMilli(run.CreatedAt).UTC(),
		Metadata: map[string]string{
			"records_synced": strconv.Itoa(run.RecordsSynced),
			"errors_count":   strconv.Itoa(run.ErrorsCount),
			"duration_ms":    strconv.FormatInt(run.DurationMs, 10),
		},
	}

	switch run.Status {
	case model.StatusFailed:
		n.Severity = SeverityCritical
		n.Title = fmt.Sprintf("voltline %s sync failed", run.SyncType)
	case model.StatusPartial:
		n.Severity = SeverityWarning
		n.Title = fmt.Sprintf("voltline %s sync partially failed", run.SyncType)
	default:
		n.Severity = SeverityInfo
		n.Title = fmt.Sprintf("voltline %s sync succeeded", run.SyncType)
	}

	n.Message = fmt.Sprintf("%d records synced, %d errors in %dms", run.RecordsSynced, run.ErrorsCount, run.DurationMs)
	if run.ErrorMessage != "" {
		n.Message += ": " + run.ErrorMessage
	}
	return n
}
