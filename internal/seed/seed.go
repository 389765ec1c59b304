// Package seed loads a small graph from YAML into the store. Applying the same file twice
// is a no-op: nodes and edges that already exist are skipped.
package seed

import (
	"context"
	_ "embed"
	"os"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/fern/internal/repositories"
	"github.com/Ramsey-B/fern/pkg/apperrors"
	"github.com/Ramsey-B/fern/pkg/audit"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/models"
)

//go:embed demo.yaml
var demo []byte

type File struct {
	Nodes []Node `yaml:"nodes"`
	Edges []Edge `yaml:"edges"`
}

type Node struct {
	ID    string         `yaml:"id"`
	Type  string         `yaml:"type"`
	Attrs map[string]any `yaml:"attrs"`
}

type Edge struct {
	ID    string         `yaml:"id"`
	Type  string         `yaml:"type"`
	From  string         `yaml:"from"`
	To    string         `yaml:"to"`
	Attrs map[string]any `yaml:"attrs"`
}

type Result struct {
	NodesCreated int `json:"nodes_created"`
	NodesSkipped int `json:"nodes_skipped"`
	EdgesCreated int `json:"edges_created"`
	EdgesSkipped int `json:"edges_skipped"`
}

// Demo returns the built-in demo graph.
func Demo() (*File, error) {
	return Parse(demo)
}

func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read seed file %s", path)
	}
	return Parse(data)
}

func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "failed to parse seed file")
	}
	for i, n := range f.Nodes {
		if n.ID == "" || n.Type == "" {
			return nil, apperrors.InvalidOperation("seed node %d needs an id and a type", i)
		}
	}
	for i, e := range f.Edges {
		if e.ID == "" || e.Type == "" || e.From == "" || e.To == "" {
			return nil, apperrors.InvalidOperation("seed edge %d needs an id, a type and both endpoints", i)
		}
	}
	return &f, nil
}

type Seeder struct {
	store  *repositories.Store
	audit  *audit.Log
	sink   events.Sink
	logger ectologger.Logger
}

func NewSeeder(store *repositories.Store, auditLog *audit.Log, sink events.Sink, logger ectologger.Logger) *Seeder {
	if sink == nil {
		sink = events.Noop()
	}
	return &Seeder{
		store:  store,
		audit:  auditLog,
		sink:   sink,
		logger: logger,
	}
}

// Apply writes f in one transaction, attributing every audit entry to actor.
func (s *Seeder) Apply(ctx context.Context, f *File, actor string) (Result, error) {
	var result Result
	rec := &events.Recorder{}
	err := s.store.Tx.RunInTx(ctx, func(ctx context.Context) error {
		result = Result{}
		for _, n := range f.Nodes {
			created, err := s.node(ctx, rec, n, actor)
			if err != nil {
				return err
			}
			if created {
				result.NodesCreated++
			} else {
				result.NodesSkipped++
			}
		}
		for _, e := range f.Edges {
			created, err := s.edge(ctx, rec, e, actor)
			if err != nil {
				return err
			}
			if created {
				result.EdgesCreated++
			} else {
				result.EdgesSkipped++
			}
		}
		return nil
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to apply seed data")
		return Result{}, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"nodes_created": result.NodesCreated,
		"nodes_skipped": result.NodesSkipped,
		"edges_created": result.EdgesCreated,
		"edges_skipped": result.EdgesSkipped,
	}).Info("Applied seed data")

	rec.Flush(ctx, s.sink, s.logger)
	return result, nil
}

func (s *Seeder) node(ctx context.Context, rec *events.Recorder, n Node, actor string) (bool, error) {
	if _, err := s.store.Nodes.Get(ctx, n.ID); err == nil {
		return false, nil
	} else if !apperrors.IsNotFound(err) {
		return false, err
	}

	node := &models.Node{ID: n.ID, Type: models.NodeType(n.Type), Attributes: attributes(n.Attrs)}
	if _, ok := node.Attributes[models.AttrStatus]; !ok {
		node.Attributes[models.AttrStatus] = string(models.NodeStatusActive)
	}
	if err := s.store.Nodes.Create(ctx, node); err != nil {
		return false, err
	}
	if _, err := s.audit.Record(ctx, models.AuditEntityCreated, actor, node.ID, map[string]any{
		"name":   node.Attributes.Name(),
		"source": "seed",
	}); err != nil {
		return false, err
	}
	rec.Add(events.Event{Kind: events.KindEntityCreated, Actor: actor, Node: node.Clone()})
	return true, nil
}

func (s *Seeder) edge(ctx context.Context, rec *events.Recorder, e Edge, actor string) (bool, error) {
	if _, err := s.store.Edges.Get(ctx, e.ID); err == nil {
		return false, nil
	} else if !apperrors.IsNotFound(err) {
		return false, err
	}

	edge := &models.Edge{
		ID:         e.ID,
		Type:       models.EdgeType(e.Type),
		FromNodeID: e.From,
		ToNodeID:   e.To,
		Attributes: attributes(e.Attrs),
	}
	if err := s.store.Edges.Create(ctx, edge); err != nil {
		return false, err
	}
	if _, err := s.audit.Record(ctx, models.AuditEdgeCreated, actor, edge.ID, map[string]any{
		"from":   edge.FromNodeID,
		"to":     edge.ToNodeID,
		"amount": edge.Attributes.Amount(),
		"source": "seed",
	}); err != nil {
		return false, err
	}
	rec.Add(events.Event{Kind: events.KindEdgeCreated, Actor: actor, Edge: edge.Clone()})
	return true, nil
}

// attributes converts yaml lists of strings into []string so alias helpers see them.
func attributes(in map[string]any) models.Attributes {
	out := models.Attributes{}
	for k, v := range in {
		if list, ok := v.([]any); ok {
			strs := make([]string, 0, len(list))
			allStrings := true
			for _, item := range list {
				s, ok := item.(string)
				if !ok {
					allStrings = false
					break
				}
				strs = append(strs, s)
			}
			if allStrings {
				out[k] = strs
				continue
			}
		}
		out[k] = v
	}
	return out
}
