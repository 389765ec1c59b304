package graph

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/repositories/memory"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/models"
)

type recordingWriter struct {
	statements []Statement
}

func (w *recordingWriter) Write(_ context.Context, statements ...Statement) error {
	w.statements = append(w.statements, statements...)
	return nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestProjector_NodeAndEdge(t *testing.T) {
	store := memory.NewStore()
	w := &recordingWriter{}
	p := NewProjector(w, store.Edges, testLogger())

	vendor := &models.Node{ID: "node:vendor:a", Type: models.NodeTypeVendor, Attributes: models.Attributes{
		"name":    "ACME",
		"aliases": []any{"ACME Co"},
		"extra":   map[string]any{"k": "v"},
	}}
	edge := &models.Edge{ID: "edge:txn:1", Type: models.EdgeTypePaymentFlow, FromNodeID: vendor.ID, ToNodeID: "node:job:J1",
		Attributes: models.Attributes{"amount": 12.5}}

	err := p.Handle(context.Background(),
		events.Event{Kind: events.KindEntityCreated, Node: vendor},
		events.Event{Kind: events.KindEdgeCreated, Edge: edge},
		events.Event{Kind: events.KindProposalCreated, Proposal: &models.MergeProposal{}},
	)
	require.NoError(t, err)
	require.Len(t, w.statements, 2)

	node := w.statements[0]
	assert.Contains(t, node.Cypher, "SET n:Vendor")
	props := node.Params["props"].(map[string]any)
	assert.Equal(t, []string{"ACME Co"}, props["aliases"])
	assert.Equal(t, `{"k":"v"}`, props["extra"])
	assert.Equal(t, "node:vendor:a", props["id"])

	rel := w.statements[1]
	assert.Contains(t, rel.Cypher, ":PAYMENTFLOW")
	assert.Equal(t, "node:job:J1", rel.Params["to"])
}

func TestProjector_MergeReprojectsSurvivorEdges(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	for _, n := range []*models.Node{
		{ID: "node:vendor:a", Type: models.NodeTypeVendor, Attributes: models.Attributes{"name": "A"}},
		{ID: "node:job:J1", Type: models.NodeTypeJob, Attributes: models.Attributes{"name": "Job J1"}},
	} {
		require.NoError(t, store.Nodes.Create(ctx, n))
	}
	require.NoError(t, store.Edges.Create(ctx, &models.Edge{ID: "edge:txn:1", Type: models.EdgeTypePaymentFlow,
		FromNodeID: "node:vendor:a", ToNodeID: "node:job:J1", Attributes: models.Attributes{"amount": 1.0}}))

	w := &recordingWriter{}
	p := NewProjector(w, store.Edges, testLogger())

	err := p.Handle(ctx, events.Event{
		Kind:  events.KindEntityMerged,
		Merge: &models.MergeOutcome{SurvivorID: "node:vendor:a", VictimID: "node:vendor:b", EdgesFrom: 1},
	})
	require.NoError(t, err)
	require.Len(t, w.statements, 3)
	assert.Contains(t, w.statements[0].Cypher, "DELETE r")
	assert.Equal(t, "node:vendor:a", w.statements[1].Params["survivor"])
	assert.Equal(t, "edge:txn:1", w.statements[2].Params["id"])
}

func TestSanitizeLabel(t *testing.T) {
	assert.Equal(t, "GeneralContractor", sanitizeLabel("General-Contractor"))
	assert.Equal(t, "Entity", sanitizeLabel("$$"))
}
