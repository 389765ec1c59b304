// Package audit is the append-only trail every mutating path writes to.
package audit

import (
	"context"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/repositories"
	"github.com/Ramsey-B/fern/pkg/apperrors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type Log struct {
	repo   repositories.AuditRepo
	logger ectologger.Logger
}

func NewLog(repo repositories.AuditRepo, logger ectologger.Logger) *Log {
	return &Log{
		repo:   repo,
		logger: logger,
	}
}

// Record appends one entry. Unknown actions and anonymous actors are rejected.
func (l *Log) Record(ctx context.Context, action models.AuditAction, actor, targetID string, details map[string]any) (*models.AuditEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "audit.Log.Record")
	defer span.End()

	if !action.IsValid() {
		return nil, apperrors.InvalidOperation("unknown audit action %q", action)
	}
	if strings.TrimSpace(actor) == "" {
		return nil, apperrors.InvalidOperation("audit entries require an actor")
	}
	if targetID == "" {
		return nil, apperrors.InvalidOperation("audit entries require a target")
	}

	entry := &models.AuditEntry{
		Action:   action,
		Actor:    actor,
		TargetID: targetID,
		Details:  details,
	}
	if err := l.repo.Append(ctx, entry); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	l.logger.WithContext(ctx).WithFields(map[string]any{
		"audit_id":  entry.ID,
		"action":    action,
		"actor":     actor,
		"target_id": targetID,
	}).Debug("Recorded audit entry")

	return entry, nil
}

// History returns the entries for a node or edge, newest first.
func (l *Log) History(ctx context.Context, targetID string) ([]models.AuditEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "audit.Log.History")
	defer span.End()

	return l.repo.ListByTarget(ctx, targetID)
}
