package audit

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/repositories/memory"
	"github.com/Ramsey-B/fern/pkg/apperrors"
	"github.com/Ramsey-B/fern/pkg/models"
)

func newTestLog() *Log {
	store := memory.NewStore()
	return NewLog(store.Audit, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
}

func TestLog_RecordAndHistory(t *testing.T) {
	ctx := context.Background()
	log := newTestLog()

	first, err := log.Record(ctx, models.AuditEntityCreated, "alice", "node:vendor:1", map[string]any{"name": "ACME"})
	require.NoError(t, err)
	second, err := log.Record(ctx, models.AuditEntityLinked, "bob", "node:vendor:1", nil)
	require.NoError(t, err)
	_, err = log.Record(ctx, models.AuditEdgeCreated, "bob", "edge:txn:1", nil)
	require.NoError(t, err)

	assert.Greater(t, second.ID, first.ID)

	history, err := log.History(ctx, "node:vendor:1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.AuditEntityLinked, history[0].Action, "newest first")
	assert.Equal(t, "bob", history[0].Actor)
	assert.Equal(t, models.AuditEntityCreated, history[1].Action)
	assert.Equal(t, "ACME", history[1].Details["name"])

	edgeHistory, err := log.History(ctx, "edge:txn:1")
	require.NoError(t, err)
	assert.Len(t, edgeHistory, 1)
}

func TestLog_RecordRejectsInvalidEntries(t *testing.T) {
	ctx := context.Background()
	log := newTestLog()

	tests := []struct {
		name   string
		action models.AuditAction
		actor  string
		target string
	}{
		{name: "unknown action", action: "entity-deleted", actor: "alice", target: "node:vendor:1"},
		{name: "missing actor", action: models.AuditEntityCreated, actor: " ", target: "node:vendor:1"},
		{name: "missing target", action: models.AuditEntityCreated, actor: "alice", target: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := log.Record(ctx, tt.action, tt.actor, tt.target, nil)
			require.Error(t, err)
			assert.True(t, apperrors.IsInvalidOperation(err))
		})
	}

	history, err := log.History(ctx, "node:vendor:1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestLog_EntriesAreCopies(t *testing.T) {
	ctx := context.Background()
	log := newTestLog()

	details := map[string]any{"reason": "dup"}
	_, err := log.Record(ctx, models.AuditVendorMerge, "alice", "node:vendor:1", details)
	require.NoError(t, err)
	details["reason"] = "changed"

	history, err := log.History(ctx, "node:vendor:1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "dup", history[0].Details["reason"])

	history[0].Details["reason"] = "mutated"
	again, err := log.History(ctx, "node:vendor:1")
	require.NoError(t, err)
	assert.Equal(t, "dup", again[0].Details["reason"])
}
