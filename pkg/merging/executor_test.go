package merging

import (
	"context"
	"fmt"
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
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/models"
)

type fixture struct {
	store    *repositories.Store
	executor *Executor
	audit    *audit.Log
	events   *events.Capture
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	store := memory.NewStore()
	auditLog := audit.NewLog(store.Audit, logger)
	capture := &events.Capture{}
	return &fixture{
		store:    store,
		executor: NewExecutor(store, auditLog, capture, logger),
		audit:    auditLog,
		events:   capture,
	}
}

func (f *fixture) vendor(t *testing.T, id, name string, aliases ...string) {
	t.Helper()
	attrs := models.Attributes{models.AttrName: name, models.AttrStatus: string(models.NodeStatusActive)}
	if len(aliases) > 0 {
		attrs[models.AttrAliases] = aliases
	}
	require.NoError(t, f.store.Nodes.Create(context.Background(), &models.Node{ID: id, Type: models.NodeTypeVendor, Attributes: attrs}))
}

func (f *fixture) job(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, f.store.Nodes.Create(context.Background(), &models.Node{ID: id, Type: models.NodeTypeJob,
		Attributes: models.Attributes{models.AttrName: id}}))
}

func (f *fixture) edge(t *testing.T, id, from, to string, amount float64) {
	t.Helper()
	require.NoError(t, f.store.Edges.Create(context.Background(), &models.Edge{
		ID: id, Type: models.EdgeTypePaymentFlow, FromNodeID: from, ToNodeID: to,
		Attributes: models.Attributes{models.AttrAmount: amount, models.AttrDate: "2024-01-01"},
	}))
}

func (f *fixture) auditCount(t *testing.T, ids ...string) int {
	t.Helper()
	total := 0
	for _, id := range ids {
		entries, err := f.audit.History(context.Background(), id)
		require.NoError(t, err)
		total += len(entries)
	}
	return total
}

func TestMerge_CombinesOutflowAndTombstonesVictim(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.vendor(t, "node:vendor:x", "X Corp")
	f.vendor(t, "node:vendor:y", "Y Corp", "Y Co")
	f.job(t, "node:job:J1")
	f.edge(t, "edge:txn:1", "node:vendor:x", "node:job:J1", 100)
	f.edge(t, "edge:txn:2", "node:vendor:y", "node:job:J1", 200)

	outcome, err := f.executor.Merge(ctx, "node:vendor:y", "node:vendor:x", "alice", "dup")
	require.NoError(t, err)
	assert.Equal(t, models.MergeOutcome{SurvivorID: "node:vendor:y", VictimID: "node:vendor:x", EdgesFrom: 1}, outcome)

	stats, err := f.store.Edges.Stats(ctx, "node:vendor:y")
	require.NoError(t, err)
	assert.Equal(t, 300.0, stats.Outflow)
	assert.Equal(t, 2, stats.EdgeCount)

	victim, err := f.store.Nodes.Get(ctx, "node:vendor:x")
	require.NoError(t, err)
	assert.True(t, victim.IsTombstone())
	assert.Equal(t, "node:vendor:y", victim.Attributes.MergedInto())

	survivor, err := f.store.Nodes.Get(ctx, "node:vendor:y")
	require.NoError(t, err)
	assert.Equal(t, []string{"Y Co", "X Corp"}, survivor.Attributes.Aliases())
	assert.False(t, survivor.IsTombstone())

	survivorHistory, err := f.audit.History(ctx, "node:vendor:y")
	require.NoError(t, err)
	require.Len(t, survivorHistory, 1)
	assert.Equal(t, models.AuditVendorMerge, survivorHistory[0].Action)
	assert.Equal(t, "node:vendor:x", survivorHistory[0].Details["merged_node"])
	assert.Equal(t, "dup", survivorHistory[0].Details["reason"])
	assert.Equal(t, "alice", survivorHistory[0].Actor)

	victimHistory, err := f.audit.History(ctx, "node:vendor:x")
	require.NoError(t, err)
	require.Len(t, victimHistory, 1)
	assert.Equal(t, models.AuditWasMerged, victimHistory[0].Action)
	assert.Equal(t, "node:vendor:y", victimHistory[0].Details["merged_into"])
	assert.Equal(t, "alice", victimHistory[0].Actor)

	assert.Equal(t, []events.Kind{events.KindEntityMerged}, f.events.Kinds())
}

func TestMerge_Chain(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.vendor(t, "node:vendor:a", "A")
	f.vendor(t, "node:vendor:b", "B")
	f.vendor(t, "node:vendor:c", "C")
	f.job(t, "node:job:J1")
	f.edge(t, "edge:txn:a", "node:vendor:a", "node:job:J1", 10)
	f.edge(t, "edge:txn:b1", "node:vendor:b", "node:job:J1", 20)
	f.edge(t, "edge:txn:b2", "node:job:J1", "node:vendor:b", 5)
	f.edge(t, "edge:txn:c", "node:vendor:c", "node:job:J1", 40)
	f.edge(t, "edge:txn:bc", "node:vendor:b", "node:vendor:c", 7)

	before := map[string]models.NodeStats{}
	for _, id := range []string{"node:vendor:a", "node:vendor:b", "node:vendor:c"} {
		s, err := f.store.Edges.Stats(ctx, id)
		require.NoError(t, err)
		before[id] = s
	}

	_, err := f.executor.Merge(ctx, "node:vendor:a", "node:vendor:b", "system", "dup")
	require.NoError(t, err)
	_, err = f.executor.Merge(ctx, "node:vendor:a", "node:vendor:c", "system", "dup")
	require.NoError(t, err)

	for _, id := range []string{"edge:txn:b1", "edge:txn:b2", "edge:txn:c", "edge:txn:bc"} {
		e, err := f.store.Edges.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, e.Touches("node:vendor:a"), id)
		assert.False(t, e.Touches("node:vendor:b"), id)
		assert.False(t, e.Touches("node:vendor:c"), id)
	}

	for _, id := range []string{"node:vendor:b", "node:vendor:c"} {
		n, err := f.store.Nodes.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, n.IsTombstone())
		assert.Equal(t, "node:vendor:a", n.Attributes.MergedInto())
	}

	after, err := f.store.Edges.Stats(ctx, "node:vendor:a")
	require.NoError(t, err)
	assert.InDelta(t,
		before["node:vendor:a"].Outflow+before["node:vendor:b"].Outflow+before["node:vendor:c"].Outflow,
		after.Outflow, 0.0001)
}

func TestMerge_Rejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		survivor string
		victim   string
		actor    string
		setup    func(t *testing.T, f *fixture)
		check    func(err error) bool
	}{
		{
			name:     "self merge",
			survivor: "node:vendor:a", victim: "node:vendor:a", actor: "system",
			check: apperrors.IsInvalidOperation,
		},
		{
			name:     "empty actor",
			survivor: "node:vendor:a", victim: "node:vendor:b", actor: " ",
			check: apperrors.IsInvalidOperation,
		},
		{
			name:     "missing victim",
			survivor: "node:vendor:a", victim: "node:vendor:zzz", actor: "system",
			check: apperrors.IsNotFound,
		},
		{
			name:     "missing survivor",
			survivor: "node:vendor:zzz", victim: "node:vendor:b", actor: "system",
			check: apperrors.IsNotFound,
		},
		{
			name:     "type mismatch",
			survivor: "node:vendor:a", victim: "node:job:J1", actor: "system",
			check: apperrors.IsInvalidOperation,
		},
		{
			name:     "victim already merged",
			survivor: "node:vendor:a", victim: "node:vendor:b", actor: "system",
			setup: func(t *testing.T, f *fixture) {
				f.vendor(t, "node:vendor:c", "C")
				_, err := f.executor.Merge(ctx, "node:vendor:c", "node:vendor:b", "system", "first")
				require.NoError(t, err)
			},
			check: apperrors.IsInvalidState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.vendor(t, "node:vendor:a", "A")
			f.vendor(t, "node:vendor:b", "B")
			f.job(t, "node:job:J1")
			f.edge(t, "edge:txn:1", "node:vendor:b", "node:job:J1", 50)
			if tt.setup != nil {
				tt.setup(t, f)
			}
			auditBefore := f.auditCount(t, "node:vendor:a", "node:vendor:b", "node:job:J1")
			edgeBefore, err := f.store.Edges.Get(ctx, "edge:txn:1")
			require.NoError(t, err)

			_, err = f.executor.Merge(ctx, tt.survivor, tt.victim, tt.actor, "reason")
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)

			assert.Equal(t, auditBefore, f.auditCount(t, "node:vendor:a", "node:vendor:b", "node:job:J1"))
			edgeAfter, err := f.store.Edges.Get(ctx, "edge:txn:1")
			require.NoError(t, err)
			assert.Equal(t, edgeBefore.FromNodeID, edgeAfter.FromNodeID)
		})
	}
}

func TestMerge_TombstoneCarriesMergedInto(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.vendor(t, "node:vendor:a", "A")
	f.vendor(t, "node:vendor:b", "B")
	f.vendor(t, "node:vendor:c", "C")

	_, err := f.executor.Merge(ctx, "node:vendor:a", "node:vendor:b", "system", "dup")
	require.NoError(t, err)

	_, err = f.executor.Merge(ctx, "node:vendor:b", "node:vendor:c", "system", "dup")
	require.True(t, apperrors.IsInvalidState(err))
	meta := apperrors.Meta(err)
	assert.Equal(t, "node:vendor:b", meta[apperrors.MetaID])
	assert.Equal(t, "node:vendor:a", meta[models.AttrMergedInto])
}

func TestMerge_MovesInvoices(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.vendor(t, "node:vendor:a", "A")
	f.vendor(t, "node:vendor:b", "B")
	require.NoError(t, f.store.Invoices.Create(ctx, &models.Invoice{ID: "inv:procore:1", Source: "procore", SourceID: "1",
		VendorNodeID: "node:vendor:b", Amount: 10}))

	outcome, err := f.executor.Merge(ctx, "node:vendor:a", "node:vendor:b", "system", "dup")
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.InvoicesMoved)

	inv, err := f.store.Invoices.Get(ctx, "inv:procore:1")
	require.NoError(t, err)
	assert.Equal(t, "node:vendor:a", inv.VendorNodeID)
}

func TestResolveLive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.vendor(t, "node:vendor:a", "A")
	f.vendor(t, "node:vendor:b", "B")
	f.vendor(t, "node:vendor:c", "C")

	_, err := f.executor.Merge(ctx, "node:vendor:b", "node:vendor:c", "system", "dup")
	require.NoError(t, err)
	_, err = f.executor.Merge(ctx, "node:vendor:a", "node:vendor:b", "system", "dup")
	require.NoError(t, err)

	live, err := f.executor.ResolveLive(ctx, "node:vendor:c")
	require.NoError(t, err)
	assert.Equal(t, "node:vendor:a", live.ID)

	live, err = f.executor.ResolveLive(ctx, "node:vendor:a")
	require.NoError(t, err)
	assert.Equal(t, "node:vendor:a", live.ID)

	_, err = f.executor.ResolveLive(ctx, "node:vendor:missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestResolveLive_Cycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, n := range []struct{ id, into string }{{"node:vendor:a", "node:vendor:b"}, {"node:vendor:b", "node:vendor:a"}} {
		require.NoError(t, f.store.Nodes.Create(ctx, &models.Node{ID: n.id, Type: models.NodeTypeVendor, Attributes: models.Attributes{
			models.AttrName: n.id, models.AttrStatus: string(models.NodeStatusMerged), models.AttrMergedInto: n.into,
		}}))
	}

	_, err := f.executor.ResolveLive(ctx, "node:vendor:a")
	assert.True(t, apperrors.IsInvalidState(err))
}

func TestMerge_ConcurrentReadersSeeWholeMerges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.vendor(t, "node:vendor:s", "Survivor")
	f.job(t, "node:job:J1")

	const victims = 8
	for i := 0; i < victims; i++ {
		id := fmt.Sprintf("node:vendor:v%d", i)
		f.vendor(t, id, fmt.Sprintf("Victim %d", i))
		f.edge(t, fmt.Sprintf("edge:txn:out%d", i), id, "node:job:J1", 10)
		f.edge(t, fmt.Sprintf("edge:txn:in%d", i), "node:job:J1", id, 1)
	}

	stop := make(chan struct{})
	var readers sync.WaitGroup
	var reads, torn, readErrs atomic.Int64
	for r := 0; r < 4; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				stats, err := f.store.Edges.Stats(ctx, "node:vendor:s")
				if err != nil {
					readErrs.Add(1)
					continue
				}
				reads.Add(1)
				// each victim carries 10 out and 1 in, so a whole merge keeps the ratio
				if stats.Outflow != 10*stats.Inflow || stats.EdgeCount%2 != 0 {
					torn.Add(1)
				}
			}
		}()
	}

	var merges sync.WaitGroup
	var failed atomic.Int64
	for i := 0; i < victims; i++ {
		merges.Add(1)
		go func(victim string) {
			defer merges.Done()
			if _, err := f.executor.Merge(ctx, "node:vendor:s", victim, "alice", "dup"); err != nil {
				failed.Add(1)
			}
		}(fmt.Sprintf("node:vendor:v%d", i))
	}
	merges.Wait()
	close(stop)
	readers.Wait()

	assert.Zero(t, failed.Load())
	assert.Zero(t, torn.Load())
	assert.Zero(t, readErrs.Load())
	assert.Positive(t, reads.Load())

	stats, err := f.store.Edges.Stats(ctx, "node:vendor:s")
	require.NoError(t, err)
	assert.Equal(t, 80.0, stats.Outflow)
	assert.Equal(t, 8.0, stats.Inflow)
	assert.Equal(t, 16, stats.EdgeCount)
	assert.Equal(t, victims, f.auditCount(t, "node:vendor:s"))
}

func TestMerge_ConcurrentMergesOfOneVictimApplyOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.vendor(t, "node:vendor:x", "X Corp")
	f.vendor(t, "node:vendor:y", "Y Corp")
	f.job(t, "node:job:J1")
	f.edge(t, "edge:txn:1", "node:vendor:x", "node:job:J1", 100)

	const workers = 8
	var wg sync.WaitGroup
	var succeeded, rejected, other atomic.Int64
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.executor.Merge(ctx, "node:vendor:y", "node:vendor:x", "alice", "dup")
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

	stats, err := f.store.Edges.Stats(ctx, "node:vendor:y")
	require.NoError(t, err)
	assert.Equal(t, 100.0, stats.Outflow)
	assert.Equal(t, 1, f.auditCount(t, "node:vendor:y"))
	assert.Len(t, f.events.Kinds(), 1)
}
