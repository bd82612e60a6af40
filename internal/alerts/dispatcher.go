// Package alerts records alert emissions for the external notification
// system. Delivery itself is out of scope; the dispatcher persists the record
// and logs at a severity matching the alert type.
package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mindwell/sentinel/internal/models"
	"github.com/mindwell/sentinel/internal/storage"
)

type Dispatcher struct {
	store  storage.Storage
	logger *zap.Logger
}

func NewDispatcher(store storage.Storage, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{store: store, logger: logger}
}

// Dispatch persists an alert for a risk profile whose recommendation says to
// alert. Returns nil without error when no alert is recommended.
func (d *Dispatcher) Dispatch(ctx context.Context, profile *models.RiskProfile) (*models.Alert, error) {
	if !profile.Alert.ShouldAlert {
		return nil, nil
	}

	alert := &models.Alert{
		ID:           uuid.New().String(),
		IndividualID: profile.IndividualID,
		Severity:     profile.Alert.AlertType,
		Reason:       profile.Alert.Reasoning,
		CreatedAt:    time.Now(),
	}
	if err := d.store.SaveAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to save alert: %w", err)
	}

	fields := []zap.Field{
		zap.String("alert_id", alert.ID),
		zap.String("individual_id", alert.IndividualID),
		zap.String("severity", alert.Severity),
		zap.String("risk_profile_id", profile.ID),
		zap.Float64("priority", profile.Alert.PriorityScore),
	}
	if alert.Severity == "IMMEDIATE" {
		d.logger.Error("Immediate alert dispatched", fields...)
	} else {
		d.logger.Warn("Alert dispatched", fields...)
	}
	return alert, nil
}
