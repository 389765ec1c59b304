package ingestion

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/repositories"
	"github.com/Ramsey-B/fern/internal/repositories/memory"
	"github.com/Ramsey-B/fern/pkg/apperrors"
	"github.com/Ramsey-B/fern/pkg/audit"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/linking"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/reconciliation"
)

const acmeID = "node:vendor:acme"

type fixture struct {
	store        *repositories.Store
	orchestrator *Orchestrator
	queue        *reconciliation.Queue
	audit        *audit.Log
	events       *events.Capture
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	store := memory.NewStore()
	auditLog := audit.NewLog(store.Audit, logger)
	capture := &events.Capture{}
	linker := linking.NewLinker(store, auditLog, logger)
	queue := reconciliation.NewQueue(store, linker, auditLog, capture, logger)
	matcher := matching.NewMatcher(store.Nodes, matching.DefaultConfig(), logger)

	require.NoError(t, store.Nodes.Create(context.Background(), &models.Node{
		ID:   acmeID,
		Type: models.NodeTypeVendor,
		Attributes: models.Attributes{
			models.AttrName:    "ACME Supplies Ltd",
			models.AttrAliases: []string{"ACME Supplies", "ACME Supply Co."},
			models.AttrStatus:  string(models.NodeStatusActive),
		},
	}))

	return &fixture{
		store:        store,
		orchestrator: NewOrchestrator(store, matcher, queue, linker, auditLog, capture, logger),
		queue:        queue,
		audit:        auditLog,
		events:       capture,
	}
}

func record(sourceID, vendor string, amount float64) models.InvoiceRecord {
	return models.InvoiceRecord{
		Source:     "procore",
		SourceID:   sourceID,
		VendorName: vendor,
		Amount:     amount,
		Date:       "2024-03-01",
		JobID:      "SKY-1",
		CostCodes:  []string{"03-300"},
		RawPayload: []byte(`{"original":true}`),
	}
}

func TestIngest_TierScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	exact, err := f.orchestrator.Ingest(ctx, record("1", "ACME Supplies Ltd", 100), "")
	require.NoError(t, err)
	assert.Equal(t, models.IngestStatusIngested, exact.Status)
	assert.Equal(t, models.MatchTypeAuto, exact.MatchType)
	assert.Equal(t, 100.0, exact.Score)
	assert.Equal(t, acmeID, exact.EntityID)
	assert.NotEmpty(t, exact.EdgeID)
	assert.Equal(t, "inv:procore:1", exact.InvoiceID)

	statsAfterExact, err := f.store.Edges.Stats(ctx, acmeID)
	require.NoError(t, err)
	assert.Equal(t, 1, statsAfterExact.EdgeCount)

	fuzzy, err := f.orchestrator.Ingest(ctx, record("2", "ACME Supply", 50), "")
	require.NoError(t, err)
	assert.Equal(t, models.IngestStatusQueued, fuzzy.Status)
	assert.Equal(t, models.MatchTypeCandidate, fuzzy.MatchType)
	assert.GreaterOrEqual(t, fuzzy.Score, 75.0)
	assert.Less(t, fuzzy.Score, 95.0)
	assert.Empty(t, fuzzy.EdgeID)
	assert.Empty(t, fuzzy.EntityID)
	assert.NotZero(t, fuzzy.TaskID)

	task, err := f.queue.Get(ctx, fuzzy.TaskID)
	require.NoError(t, err)
	assert.Equal(t, acmeID, task.CandidateID)
	assert.Equal(t, models.TaskStatusPending, task.Status)
	assert.Equal(t, "ACME Supply", task.Record.VendorName)
	assert.JSONEq(t, `{"original":true}`, string(task.Record.RawPayload))

	statsAfterFuzzy, err := f.store.Edges.Stats(ctx, acmeID)
	require.NoError(t, err)
	assert.Equal(t, statsAfterExact, statsAfterFuzzy)
	_, err = f.store.Invoices.Get(ctx, "inv:procore:2")
	assert.True(t, apperrors.IsNotFound(err))

	fresh, err := f.orchestrator.Ingest(ctx, record("3", "Totally Different Co", 75), "")
	require.NoError(t, err)
	assert.Equal(t, models.IngestStatusIngested, fresh.Status)
	assert.Equal(t, models.MatchTypeNew, fresh.MatchType)
	assert.Less(t, fresh.Score, 75.0)
	assert.NotEqual(t, acmeID, fresh.EntityID)
	assert.Regexp(t, `^node:vendor:[0-9a-z]{10}$`, fresh.EntityID)
	assert.NotEmpty(t, fresh.EdgeID)

	vendor, err := f.store.Nodes.Get(ctx, fresh.EntityID)
	require.NoError(t, err)
	assert.Equal(t, "Totally Different Co", vendor.Attributes.Name())
	assert.Equal(t, []string{"Totally Different Co"}, vendor.Attributes.Aliases())
	assert.Equal(t, models.NodeStatusActive, vendor.Attributes.Status())

	history, err := f.audit.History(ctx, fresh.EntityID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.AuditEntityLinked, history[0].Action)
	assert.Equal(t, models.AuditEntityCreated, history[1].Action)
	assert.Equal(t, "system", history[0].Actor)

	edge, err := f.store.Edges.Get(ctx, fresh.EdgeID)
	require.NoError(t, err)
	assert.Equal(t, models.EdgeTypePaymentFlow, edge.Type)
	assert.Equal(t, fresh.EntityID, edge.FromNodeID)
	assert.Equal(t, "node:job:SKY-1", edge.ToNodeID)
	assert.Equal(t, 75.0, edge.Attributes.Amount())
	assert.Equal(t, "USD", edge.Attributes.String(models.AttrCurrency))
}

func TestIngest_CreatesJobOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.orchestrator.Ingest(ctx, record("1", "ACME Supplies Ltd", 100), "alice")
	require.NoError(t, err)
	_, err = f.orchestrator.Ingest(ctx, record("2", "ACME Supplies Ltd", 50), "alice")
	require.NoError(t, err)

	job, err := f.store.Nodes.Get(ctx, "node:job:SKY-1")
	require.NoError(t, err)
	assert.Equal(t, models.NodeTypeJob, job.Type)
	assert.Equal(t, "Job SKY-1", job.Attributes.Name())

	history, err := f.audit.History(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.AuditEntityCreated, history[0].Action)
	assert.Equal(t, "alice", history[0].Actor)

	stats, err := f.store.Edges.Stats(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 150.0, stats.Inflow)

	assert.Equal(t, []events.Kind{
		events.KindEntityCreated, events.KindEdgeCreated,
		events.KindEdgeCreated,
	}, f.events.Kinds())
}

func TestIngest_DuplicateRecordIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.orchestrator.Ingest(ctx, record("1", "ACME Supplies Ltd", 100), "")
	require.NoError(t, err)
	historyBefore, err := f.audit.History(ctx, acmeID)
	require.NoError(t, err)
	eventsBefore := len(f.events.Events())

	second, err := f.orchestrator.Ingest(ctx, record("1", "ACME Supplies Ltd", 100), "")
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, models.IngestStatusIngested, second.Status)
	assert.Equal(t, first.EntityID, second.EntityID)
	assert.Equal(t, first.EdgeID, second.EdgeID)
	assert.Equal(t, first.InvoiceID, second.InvoiceID)

	historyAfter, err := f.audit.History(ctx, acmeID)
	require.NoError(t, err)
	assert.Len(t, historyAfter, len(historyBefore))
	stats, err := f.store.Edges.Stats(ctx, acmeID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EdgeCount)
	assert.Len(t, f.events.Events(), eventsBefore)
}

func TestIngest_QueuedRecordIsNotQueuedTwice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.orchestrator.Ingest(ctx, record("9", "ACME Supply", 75), "")
	require.NoError(t, err)
	require.Equal(t, models.IngestStatusQueued, first.Status)
	eventsBefore := len(f.events.Events())

	second, err := f.orchestrator.Ingest(ctx, record("9", "ACME Supply", 75), "")
	require.NoError(t, err)
	assert.Equal(t, models.IngestStatusQueued, second.Status)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.TaskID, second.TaskID)
	assert.Equal(t, first.Score, second.Score)
	assert.Len(t, f.events.Events(), eventsBefore)

	pending, err := f.queue.ListPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, err = f.queue.Resolve(ctx, first.TaskID, models.ResolveTaskRequest{Action: models.ResolveActionMerge, Actor: "alice"})
	require.NoError(t, err)

	third, err := f.orchestrator.Ingest(ctx, record("9", "ACME Supply", 75), "")
	require.NoError(t, err)
	assert.Equal(t, models.IngestStatusIngested, third.Status)
	assert.True(t, third.Duplicate)
	assert.Equal(t, acmeID, third.EntityID)

	pending, err = f.queue.ListPending(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestIngest_WithoutJobWritesNoEdge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	r := record("1", "ACME Supplies Ltd", 100)
	r.JobID = ""
	result, err := f.orchestrator.Ingest(ctx, r, "")
	require.NoError(t, err)
	assert.Equal(t, models.IngestStatusIngested, result.Status)
	assert.Equal(t, acmeID, result.EntityID)
	assert.Empty(t, result.EdgeID)
	assert.Empty(t, result.InvoiceID)

	history, err := f.audit.History(ctx, acmeID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.AuditEntityLinked, history[0].Action)
}

func TestIngest_InvalidRecord(t *testing.T) {
	f := newFixture(t)

	r := record("1", "", 100)
	_, err := f.orchestrator.Ingest(context.Background(), r, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidOperation(err))

	nodes, err := f.store.Nodes.ListLive(context.Background(), models.NodeTypeVendor)
	require.NoError(t, err)
	assert.Len(t, nodes, 1)
}

func TestIngest_ConfirmedAliasMatchesNextTime(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	queued, err := f.orchestrator.Ingest(ctx, record("1", "ACME Supply", 10), "")
	require.NoError(t, err)
	require.Equal(t, models.IngestStatusQueued, queued.Status)

	_, err = f.queue.Resolve(ctx, queued.TaskID, models.ResolveTaskRequest{Action: models.ResolveActionMerge, Actor: "reviewer"})
	require.NoError(t, err)

	again, err := f.orchestrator.Ingest(ctx, record("2", "ACME Supply", 20), "")
	require.NoError(t, err)
	assert.Equal(t, models.MatchTypeAuto, again.MatchType)
	assert.Equal(t, acmeID, again.EntityID)
}

func TestResolve(t *testing.T) {
	f := newFixture(t)

	got, err := f.orchestrator.Resolve(context.Background(), "ACME Supplies Ltd", "")
	require.NoError(t, err)
	assert.Equal(t, models.MatchTypeAuto, got.MatchType)
	assert.Equal(t, acmeID, got.MatchID)

	_, err = f.orchestrator.Resolve(context.Background(), "  ", models.NodeTypeVendor)
	assert.True(t, apperrors.IsInvalidOperation(err))
}

func TestUpdateInvoiceStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	ingested, err := f.orchestrator.Ingest(ctx, record("1", "ACME Supplies Ltd", 100), "")
	require.NoError(t, err)

	invoice, err := f.orchestrator.UpdateInvoiceStatus(ctx, ingested.InvoiceID, models.InvoiceStatusApproved, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusApproved, invoice.Status)

	stored, err := f.store.Invoices.Get(ctx, ingested.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusApproved, stored.Status)

	history, err := f.audit.History(ctx, ingested.InvoiceID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.AuditInvoiceStatusChanged, history[0].Action)
	assert.Equal(t, "unapproved", history[0].Details["previous_status"])
	assert.Equal(t, "approved", history[0].Details["new_status"])

	_, err = f.orchestrator.UpdateInvoiceStatus(ctx, ingested.InvoiceID, models.InvoiceStatus("lost"), "bob")
	assert.True(t, apperrors.IsInvalidOperation(err))

	_, err = f.orchestrator.UpdateInvoiceStatus(ctx, "inv:procore:nope", models.InvoiceStatusPaid, "bob")
	assert.True(t, apperrors.IsNotFound(err))
}
