package seed

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/repositories/memory"
	"github.com/Ramsey-B/fern/pkg/apperrors"
	"github.com/Ramsey-B/fern/pkg/audit"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/models"
)

func TestSeeder_ApplyDemo(t *testing.T) {
	ctx := context.Background()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	store := memory.NewStore()
	auditLog := audit.NewLog(store.Audit, logger)
	capture := &events.Capture{}
	seeder := NewSeeder(store, auditLog, capture, logger)

	f, err := Demo()
	require.NoError(t, err)

	result, err := seeder.Apply(ctx, f, "seed")
	require.NoError(t, err)
	assert.Equal(t, Result{NodesCreated: 2, EdgesCreated: 1}, result)

	vendor, err := store.Nodes.Get(ctx, "node:vendor:12345")
	require.NoError(t, err)
	assert.Equal(t, []string{"ACME Supplies", "ACME Supply Co."}, vendor.Attributes.Aliases())
	assert.Equal(t, models.NodeStatusActive, vendor.Attributes.Status())

	stats, err := store.Edges.Stats(ctx, "node:job:8899")
	require.NoError(t, err)
	assert.InDelta(t, 12500.50, stats.Inflow, 0.001)

	assert.Equal(t, []events.Kind{events.KindEntityCreated, events.KindEntityCreated, events.KindEdgeCreated}, capture.Kinds())

	again, err := seeder.Apply(ctx, f, "seed")
	require.NoError(t, err)
	assert.Equal(t, Result{NodesSkipped: 2, EdgesSkipped: 1}, again)

	history, err := auditLog.History(ctx, "node:vendor:12345")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestParse_Rejections(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"node without type", "nodes:\n  - id: node:vendor:1\n"},
		{"edge without endpoint", "edges:\n  - id: e1\n    type: PaymentFlow\n    from: a\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, apperrors.IsInvalidOperation(err))
		})
	}

	_, err := Parse([]byte("nodes: [oops"))
	assert.Error(t, err)
}

func TestSeeder_MissingEndpointRollsBack(t *testing.T) {
	ctx := context.Background()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	store := memory.NewStore()
	seeder := NewSeeder(store, audit.NewLog(store.Audit, logger), nil, logger)

	f := &File{
		Nodes: []Node{{ID: "node:vendor:a", Type: "Vendor", Attrs: map[string]any{"name": "A"}}},
		Edges: []Edge{{ID: "edge:1", Type: "PaymentFlow", From: "node:vendor:a", To: "node:job:missing"}},
	}
	_, err := seeder.Apply(ctx, f, "seed")
	require.Error(t, err)

	_, err = store.Nodes.Get(ctx, "node:vendor:a")
	assert.True(t, apperrors.IsNotFound(err))
}
