package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/repositories"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Statement is one parameterised cypher query.
type Statement struct {
	Cypher string
	Params map[string]any
}

// Writer is satisfied by *Client.
type Writer interface {
	Write(ctx context.Context, statements ...Statement) error
}

// Projector keeps the graph projection in step with committed changes.
type Projector struct {
	writer Writer
	edges  repositories.EdgeRepo
	logger ectologger.Logger
}

// NewProjector builds a projector. edges is read after a merge to re-project the
// survivor's relationships.
func NewProjector(writer Writer, edges repositories.EdgeRepo, logger ectologger.Logger) *Projector {
	return &Projector{
		writer: writer,
		edges:  edges,
		logger: logger,
	}
}

func (p *Projector) Handle(ctx context.Context, evts ...events.Event) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.Handle")
	defer span.End()

	var statements []Statement
	for _, evt := range evts {
		switch {
		case evt.Merge != nil:
			sts, err := p.mergeStatements(ctx, evt)
			if err != nil {
				return err
			}
			statements = append(statements, sts...)
		case evt.Edge != nil:
			statements = append(statements, edgeStatement(evt.Edge))
		case evt.Node != nil:
			statements = append(statements, nodeStatement(evt.Node))
		}
	}

	if err := p.writer.Write(ctx, statements...); err != nil {
		tracing.RecordError(span, err)
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"statement_count": len(statements),
		}).Error("Failed to project events")
		return err
	}
	return nil
}

// mergeStatements tombstones the victim, drops its relationships and re-projects every
// edge now touching the survivor.
func (p *Projector) mergeStatements(ctx context.Context, evt events.Event) ([]Statement, error) {
	m := evt.Merge
	statements := []Statement{
		{
			Cypher: `MATCH (v {id: $victim})-[r]-() DELETE r`,
			Params: map[string]any{"victim": m.VictimID},
		},
		{
			Cypher: `MATCH (v {id: $victim}) SET v.status = $status, v.merged_into = $survivor`,
			Params: map[string]any{
				"victim":   m.VictimID,
				"survivor": m.SurvivorID,
				"status":   string(models.NodeStatusMerged),
			},
		},
	}
	if evt.Node != nil {
		statements = append(statements, nodeStatement(evt.Node))
	}

	touching, err := p.edges.ListTouching(ctx, m.SurvivorID)
	if err != nil {
		return nil, err
	}
	for _, e := range touching {
		statements = append(statements, edgeStatement(e))
	}
	return statements, nil
}

func nodeStatement(n *models.Node) Statement {
	props := properties(n.Attributes)
	props["id"] = n.ID
	props["type"] = string(n.Type)

	return Statement{
		Cypher: fmt.Sprintf(`MERGE (n {id: $id}) SET n:%s, n += $props`, sanitizeLabel(string(n.Type))),
		Params: map[string]any{"id": n.ID, "props": props},
	}
}

// edgeStatement upserts a relationship by id, moving it when its endpoints changed.
func edgeStatement(e *models.Edge) Statement {
	props := properties(e.Attributes)
	props["id"] = e.ID

	return Statement{
		Cypher: fmt.Sprintf(`
			MATCH ()-[old {id: $id}]->() DELETE old
			WITH count(*) AS removed
			MERGE (a {id: $from})
			MERGE (b {id: $to})
			CREATE (a)-[r:%s]->(b)
			SET r = $props
		`, strings.ToUpper(sanitizeLabel(string(e.Type)))),
		Params: map[string]any{
			"id":    e.ID,
			"from":  e.FromNodeID,
			"to":    e.ToNodeID,
			"props": props,
		},
	}
}

// properties flattens an attribute bag into values Bolt can store. Nested maps become json.
func properties(attrs models.Attributes) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		switch val := v.(type) {
		case nil:
		case string, bool, int, int64, float64:
			out[k] = val
		case []string:
			out[k] = append([]string(nil), val...)
		case []any:
			strs := make([]string, 0, len(val))
			for _, item := range val {
				if s, ok := item.(string); ok {
					strs = append(strs, s)
				}
			}
			if len(strs) == len(val) {
				out[k] = strs
				continue
			}
			b, _ := json.Marshal(val)
			out[k] = string(b)
		default:
			b, _ := json.Marshal(val)
			out[k] = string(b)
		}
	}
	return out
}

func sanitizeLabel(label string) string {
	var b strings.Builder
	for _, c := range label {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			b.WriteRune(c)
		}
	}
	if b.Len() == 0 {
		return "Entity"
	}
	return b.String()
}
