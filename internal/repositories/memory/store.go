// Package memory is an in-process store with the same atomicity guarantees as the
// postgres repositories. A transaction holds the store's write lock for its whole
// duration and restores a snapshot when fn fails, so readers never observe a
// half-applied write.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Ramsey-B/fern/internal/repositories"
	"github.com/Ramsey-B/fern/pkg/models"
)

type txMarker struct{}

type state struct {
	nodes       map[string]*models.Node
	edges       map[string]*models.Edge
	edgeSeq     map[string]int64
	nextEdgeSeq int64
	audit       []models.AuditEntry
	auditSeq    int64
	tasks       map[int64]*models.ReconciliationTask
	taskSeq     int64
	proposals   map[int64]*models.MergeProposal
	proposalSeq int64
	invoices    map[string]*models.Invoice
}

func newState() *state {
	return &state{
		nodes:     map[string]*models.Node{},
		edges:     map[string]*models.Edge{},
		edgeSeq:   map[string]int64{},
		tasks:     map[int64]*models.ReconciliationTask{},
		proposals: map[int64]*models.MergeProposal{},
		invoices:  map[string]*models.Invoice{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.nodes {
		c.nodes[k] = v.Clone()
	}
	for k, v := range s.edges {
		c.edges[k] = v.Clone()
	}
	for k, v := range s.edgeSeq {
		c.edgeSeq[k] = v
	}
	c.nextEdgeSeq = s.nextEdgeSeq
	c.audit = append([]models.AuditEntry(nil), s.audit...)
	c.auditSeq = s.auditSeq
	for k, v := range s.tasks {
		t := *v
		c.tasks[k] = &t
	}
	c.taskSeq = s.taskSeq
	for k, v := range s.proposals {
		c.proposals[k] = cloneProposal(v)
	}
	c.proposalSeq = s.proposalSeq
	for k, v := range s.invoices {
		inv := *v
		c.invoices[k] = &inv
	}
	return c
}

// Store is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	state *state
	now   func() time.Time
}

func New() *Store {
	return &Store{
		state: newState(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// NewStore returns the memory store wired as a repositories.Store.
func NewStore() *repositories.Store {
	s := New()
	return s.Repositories()
}

func (s *Store) Repositories() *repositories.Store {
	return &repositories.Store{
		Nodes:     &nodeRepo{s},
		Edges:     &edgeRepo{s},
		Audit:     &auditRepo{s},
		Tasks:     &taskRepo{s},
		Proposals: &proposalRepo{s},
		Invoices:  &invoiceRepo{s},
		Tx:        s,
	}
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, ok := ctx.Value(txMarker{}).(*Store)
	return ok && owner == s
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	defer func() {
		if p := recover(); p != nil {
			s.state = snapshot
			panic(p)
		}
		if err != nil {
			s.state = snapshot
		}
	}()

	return fn(context.WithValue(ctx, txMarker{}, s))
}

// read runs fn under the read lock unless ctx already owns the write lock.
func (s *Store) read(ctx context.Context, fn func(st *state) error) error {
	if s.inTx(ctx) {
		return fn(s.state)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.state)
}

// write runs fn as a single atomic step.
func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	return s.RunInTx(ctx, func(context.Context) error {
		return fn(s.state)
	})
}

func sortedEdges(st *state, keep func(*models.Edge) bool) []*models.Edge {
	out := make([]*models.Edge, 0)
	for _, e := range st.edges {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return st.edgeSeq[out[i].ID] < st.edgeSeq[out[j].ID]
	})
	return out
}

func cloneProposal(p *models.MergeProposal) *models.MergeProposal {
	c := *p
	c.VictimIDs = append([]string(nil), p.VictimIDs...)
	c.Preview.Victims = append([]models.VictimImpact(nil), p.Preview.Victims...)
	return &c
}
