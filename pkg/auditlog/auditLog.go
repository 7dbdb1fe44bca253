package auditlog

import (
	"context"
	"substock/pkg/models"

	"go.uber.org/zap"
)

type Persister interface {
	PersistLog(ctx context.Context, auditLog models.AuditLog, data interface{}) error
}

type Auditlog struct {
	r      Persister
	logger *zap.Logger
}

type Auditable interface {
	CreateLogView() models.AuditLog
}

// Log writes an audit entry after the change it describes has committed. A failed write
// is logged and never undoes the change.
func (a *Auditlog) Log(ctx context.Context, action string, data interface{}, item Auditable, userID int) {
	auditLog := item.CreateLogView()
	auditLog.Action = action
	if userID != 0 {
		auditLog.UserID = &userID
	}

	if err := a.r.PersistLog(ctx, auditLog, data); err != nil {
		a.logger.Error("Unable to create AuditLog entry",
			zap.String("resource_type", auditLog.ResourceType),
			zap.Int("resource_id", auditLog.ResourceID),
			zap.Error(err),
		)
		return
	}

	a.logger.Debug("Created AuditLog entry",
		zap.String("resource_type", auditLog.ResourceType),
		zap.Int("resource_id", auditLog.ResourceID),
		zap.String("action", action),
	)
}

func NewAuditLog(persister Persister, logger *zap.Logger) *Auditlog {
	a := Auditlog{r: persister, logger: logger}

	return &a
}
