package reconciliation

import (
	"context"
	"log/slog"

	"trustrails/internal/rollover/metrics"
	"trustrails/internal/rollover/models"
	id "trustrails/pkg/domain"
)

// Alert describes an escalation that needs an operator.
type Alert struct {
	TransferID id.TransferID
	Action     models.ActionType
	Class      ErrorClass
	Attempts   int
	Message    string
}

// Alerter delivers escalations. Implementations must not block the pass for long.
type Alerter interface {
	Alert(ctx context.Context, a Alert)
}

// LogAlerter writes alerts to the structured log and counts them.
type LogAlerter struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewLogAlerter(logger *slog.Logger, m *metrics.Metrics) *LogAlerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogAlerter{logger: logger, metrics: m}
}

func (a *LogAlerter) Alert(ctx context.Context, alert Alert) {
	a.logger.ErrorContext(ctx, "reconciliation alert",
		"transfer_id", alert.TransferID,
		"action", alert.Action,
		"class", alert.Class,
		"attempts", alert.Attempts,
		"message", alert.Message,
	)
	if a.metrics != nil {
		a.metrics.IncAlerts(string(alert.Class))
	}
}
