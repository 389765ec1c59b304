package reconciliation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/repositories"
	"github.com/Ramsey-B/fern/internal/repositories/memory"
	"github.com/Ramsey-B/fern/pkg/apperrors"
	"github.com/Ramsey-B/fern/pkg/audit"
	fernctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/linking"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/models"
)

const acmeID = "node:vendor:acme"

type fixture struct {
	store    *repositories.Store
	queue    *Queue
	executor *merging.Executor
	audit    *audit.Log
	events   *events.Capture
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	store := memory.NewStore()
	auditLog := audit.NewLog(store.Audit, logger)
	capture := &events.Capture{}
	linker := linking.NewLinker(store, auditLog, logger)

	f := &fixture{
		store:    store,
		queue:    NewQueue(store, linker, auditLog, capture, logger),
		executor: merging.NewExecutor(store, auditLog, nil, logger),
		audit:    auditLog,
		events:   capture,
	}
	f.vendor(t, acmeID, "ACME Supplies Ltd", "ACME Supplies")
	return f
}

func (f *fixture) vendor(t *testing.T, id, name string, aliases ...string) {
	t.Helper()
	attrs := models.Attributes{models.AttrName: name, models.AttrStatus: string(models.NodeStatusActive)}
	if len(aliases) > 0 {
		attrs[models.AttrAliases] = aliases
	}
	require.NoError(t, f.store.Nodes.Create(context.Background(), &models.Node{ID: id, Type: models.NodeTypeVendor, Attributes: attrs}))
}

func (f *fixture) enqueue(t *testing.T, sourceID, name string) int64 {
	t.Helper()
	id, err := f.queue.Enqueue(context.Background(), models.InvoiceRecord{
		Source:     "procore",
		SourceID:   sourceID,
		VendorName: name,
		Amount:     50,
		Date:       "2024-03-01",
		JobID:      "SKY-1",
	}, acmeID, 88, "ingest")
	require.NoError(t, err)
	return id
}

func TestEnqueue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id := f.enqueue(t, "1", "ACME Supply")
	assert.Equal(t, int64(1), id)

	task, err := f.queue.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, task.Status)
	assert.Equal(t, models.NodeTypeVendor, task.EntityType)
	assert.Equal(t, 88.0, task.Score)

	history, err := f.audit.History(ctx, acmeID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.AuditReconciliationQueued, history[0].Action)
	assert.Equal(t, "ACME Supply", history[0].Details["raw_name"])

	pending, err := f.queue.ListPending(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
	assert.Equal(t, []events.Kind{events.KindReconciliationQueued}, f.events.Kinds())
}

func TestEnqueue_Rejections(t *testing.T) {
	f := newFixture(t)
	record := models.InvoiceRecord{Source: "procore", SourceID: "1", VendorName: "ACME Supply"}

	_, err := f.queue.Enqueue(context.Background(), record, "", 88, "ingest")
	assert.True(t, apperrors.IsInvalidOperation(err))

	_, err = f.queue.Enqueue(context.Background(), record, "node:vendor:ghost", 88, "ingest")
	assert.True(t, apperrors.IsNotFound(err))

	pending, err := f.queue.ListPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestResolve_MergeConfirmsCandidate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.enqueue(t, "1", "ACME Supply")

	result, err := f.queue.Resolve(ctx, id, models.ResolveTaskRequest{Action: models.ResolveActionMerge, Actor: "reviewer"})
	require.NoError(t, err)
	assert.Equal(t, acmeID, result.ResolvedEntityID)
	assert.NotEmpty(t, result.EdgeID)
	assert.Equal(t, "inv:procore:1", result.InvoiceID)

	vendor, err := f.store.Nodes.Get(ctx, acmeID)
	require.NoError(t, err)
	assert.Equal(t, []string{"ACME Supplies", "ACME Supply"}, vendor.Attributes.Aliases())

	task, err := f.queue.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusResolved, task.Status)
	assert.Equal(t, "reviewer", task.ResolvedBy)
	assert.Equal(t, models.ResolveActionMerge, task.Resolution)
	assert.Equal(t, acmeID, task.ResolvedEntityID)
	assert.NotNil(t, task.ResolvedAt)

	history, err := f.audit.History(ctx, acmeID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.AuditEntityMatchedConfirmed, history[0].Action)
	assert.Equal(t, "reviewer", history[0].Actor)

	stats, err := f.store.Edges.Stats(ctx, acmeID)
	require.NoError(t, err)
	assert.Equal(t, 50.0, stats.Outflow)

	assert.Contains(t, f.events.Kinds(), events.KindEntityUpdated)
	assert.Equal(t, events.KindReconciliationDone, f.events.Kinds()[len(f.events.Kinds())-1])
}

func TestResolve_SecondResolveIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.enqueue(t, "1", "ACME Supply")

	_, err := f.queue.Resolve(ctx, id, models.ResolveTaskRequest{Action: models.ResolveActionMerge, Actor: "reviewer"})
	require.NoError(t, err)
	statsBefore, err := f.store.Edges.Stats(ctx, acmeID)
	require.NoError(t, err)

	_, err = f.queue.Resolve(ctx, id, models.ResolveTaskRequest{Action: models.ResolveActionCreateNew, Actor: "reviewer"})
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidState(err))
	meta := apperrors.Meta(err)
	assert.Equal(t, "pending", meta[apperrors.MetaExpected])
	assert.Equal(t, "resolved", meta[apperrors.MetaActual])

	statsAfter, err := f.store.Edges.Stats(ctx, acmeID)
	require.NoError(t, err)
	assert.Equal(t, statsBefore, statsAfter)

	vendors, err := f.store.Nodes.ListLive(ctx, models.NodeTypeVendor)
	require.NoError(t, err)
	assert.Len(t, vendors, 1)
}

func TestResolve_CreateNew(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.enqueue(t, "1", "ACME Supply")

	result, err := f.queue.Resolve(ctx, id, models.ResolveTaskRequest{Action: models.ResolveActionCreateNew, Actor: "reviewer"})
	require.NoError(t, err)
	assert.NotEqual(t, acmeID, result.ResolvedEntityID)

	vendor, err := f.store.Nodes.Get(ctx, result.ResolvedEntityID)
	require.NoError(t, err)
	assert.Equal(t, "ACME Supply", vendor.Attributes.Name())
	assert.Equal(t, []string{"ACME Supply"}, vendor.Attributes.Aliases())

	history, err := f.audit.History(ctx, vendor.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.AuditEntityCreated, history[0].Action)
	assert.Equal(t, id, history[0].Details["task_id"])

	candidate, err := f.store.Nodes.Get(ctx, acmeID)
	require.NoError(t, err)
	assert.Equal(t, []string{"ACME Supplies"}, candidate.Attributes.Aliases())
}

func TestResolve_MergeFollowsMergedTarget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.vendor(t, "node:vendor:parent", "ACME Holdings")
	id := f.enqueue(t, "1", "ACME Supply")

	_, err := f.executor.Merge(ctx, "node:vendor:parent", acmeID, "steward", "duplicate")
	require.NoError(t, err)

	result, err := f.queue.Resolve(ctx, id, models.ResolveTaskRequest{Action: models.ResolveActionMerge, Actor: "reviewer"})
	require.NoError(t, err)
	assert.Equal(t, "node:vendor:parent", result.ResolvedEntityID)

	history, err := f.audit.History(ctx, "node:vendor:parent")
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.Equal(t, models.AuditEntityMatchedConfirmed, history[0].Action)
	assert.Equal(t, acmeID, history[0].Details["requested_target"])

	edge, err := f.store.Edges.Get(ctx, result.EdgeID)
	require.NoError(t, err)
	assert.Equal(t, "node:vendor:parent", edge.FromNodeID)
}

func TestResolve_OverrideTarget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.vendor(t, "node:vendor:other", "Apex Supply")
	id := f.enqueue(t, "1", "ACME Supply")

	result, err := f.queue.Resolve(ctx, id, models.ResolveTaskRequest{
		Action:         models.ResolveActionMerge,
		TargetEntityID: "node:vendor:other",
	})
	require.NoError(t, err)
	assert.Equal(t, "node:vendor:other", result.ResolvedEntityID)

	task, err := f.queue.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "system", task.ResolvedBy)
}

func TestResolve_ActorFromContext(t *testing.T) {
	f := newFixture(t)
	id := f.enqueue(t, "1", "ACME Supply")
	ctx := fernctx.SetActor(context.Background(), "carol")

	_, err := f.queue.Resolve(ctx, id, models.ResolveTaskRequest{Action: models.ResolveActionMerge})
	require.NoError(t, err)

	task, err := f.queue.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "carol", task.ResolvedBy)
}

func TestResolve_Rejections(t *testing.T) {
	f := newFixture(t)
	id := f.enqueue(t, "1", "ACME Supply")
	require.NoError(t, f.store.Nodes.Create(context.Background(), &models.Node{
		ID: "node:job:J1", Type: models.NodeTypeJob, Attributes: models.Attributes{models.AttrName: "J1"},
	}))

	tests := []struct {
		name   string
		taskID int64
		req    models.ResolveTaskRequest
		check  func(error) bool
	}{
		{"unknown action", id, models.ResolveTaskRequest{Action: "split"}, apperrors.IsInvalidOperation},
		{"unknown task", 99, models.ResolveTaskRequest{Action: models.ResolveActionMerge}, apperrors.IsNotFound},
		{"missing target", id, models.ResolveTaskRequest{Action: models.ResolveActionMerge, TargetEntityID: "node:vendor:ghost"}, apperrors.IsNotFound},
		{"wrong target type", id, models.ResolveTaskRequest{Action: models.ResolveActionMerge, TargetEntityID: "node:job:J1"}, apperrors.IsInvalidOperation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.queue.Resolve(context.Background(), tt.taskID, tt.req)
			require.Error(t, err)
			assert.True(t, tt.check(err), err.Error())
		})
	}

	task, err := f.queue.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, task.Status)
}

func TestResolve_ClosesTaskForIngestedRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first := f.enqueue(t, "9", "ACME Supply")
	second := f.enqueue(t, "9", "ACME Supply")

	resolved, err := f.queue.Resolve(ctx, first, models.ResolveTaskRequest{Action: models.ResolveActionMerge, Actor: "alice"})
	require.NoError(t, err)
	assert.False(t, resolved.Duplicate)

	closed, err := f.queue.Resolve(ctx, second, models.ResolveTaskRequest{Action: models.ResolveActionCreateNew, Actor: "bob"})
	require.NoError(t, err)
	assert.True(t, closed.Duplicate)
	assert.Equal(t, acmeID, closed.ResolvedEntityID)
	assert.Equal(t, resolved.EdgeID, closed.EdgeID)
	assert.Equal(t, "inv:procore:9", closed.InvoiceID)

	task, err := f.queue.Get(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusResolved, task.Status)
	assert.Equal(t, "bob", task.ResolvedBy)
	assert.Equal(t, acmeID, task.ResolvedEntityID)

	pending, err := f.queue.ListPending(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// create_new was not applied: no vendor minted, no second edge
	vendors, err := f.store.Nodes.ListLive(ctx, models.NodeTypeVendor)
	require.NoError(t, err)
	assert.Len(t, vendors, 1)
	stats, err := f.store.Edges.Stats(ctx, acmeID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EdgeCount)
}

func TestResolve_ConcurrentResolvesMaterializeOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.enqueue(t, "1", "ACME Supply")

	const workers = 8
	var wg sync.WaitGroup
	var succeeded, rejected, other atomic.Int64
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.queue.Resolve(ctx, id, models.ResolveTaskRequest{
				Action:         models.ResolveActionMerge,
				TargetEntityID: acmeID,
				Actor:          "alice",
			})
			switch {
			case err == nil:
				succeeded.Add(1)
			case apperrors.IsInvalidState(err):
				rejected.Add(1)
			default:
				other.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), succeeded.Load())
	assert.Equal(t, int64(workers-1), rejected.Load())
	assert.Zero(t, other.Load())

	task, err := f.queue.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusResolved, task.Status)

	stats, err := f.store.Edges.Stats(ctx, acmeID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EdgeCount)
	assert.Equal(t, 50.0, stats.Outflow)

	done := 0
	for _, kind := range f.events.Kinds() {
		if kind == events.KindReconciliationDone {
			done++
		}
	}
	assert.Equal(t, 1, done)
}
