package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-visit-api/internal/models"
)

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// emitAudit persists an audit entry. Failures are logged and never surface to the caller.
func emitAudit(ctx context.Context, sink auditLogger, logger *zap.Logger, agent string, log *models.AuditLog) {
	if sink == nil || log == nil {
		return
	}
	log.IPAddress = "system"
	log.UserAgent = agent
	if err := sink.CreateAuditLog(ctx, log); err != nil {
		logger.Warn("failed to persist audit log", zap.String("action", log.Action), zap.Error(err))
	}
}

func auditPayload(value interface{}) []byte {
	if value == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	return raw
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
