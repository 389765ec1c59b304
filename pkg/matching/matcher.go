// Package matching resolves free-text names to canonical entities.
package matching

import (
	"context"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/apperrors"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// CandidateSource supplies the live canonical set for a type.
type CandidateSource interface {
	ListLive(ctx context.Context, nodeType models.NodeType) ([]*models.Node, error)
}

// Config holds the tier thresholds on the 0-100 score scale
type Config struct {
	AutoThreshold      float64
	CandidateThreshold float64
}

// DefaultConfig returns the production thresholds
func DefaultConfig() Config {
	return Config{
		AutoThreshold:      95,
		CandidateThreshold: 75,
	}
}

func (c Config) Validate() error {
	if c.CandidateThreshold < 0 || c.AutoThreshold > 100 {
		return apperrors.InvalidOperation("match thresholds must be within 0-100")
	}
	if c.AutoThreshold <= c.CandidateThreshold {
		return apperrors.InvalidOperation("auto threshold %.1f must be above candidate threshold %.1f", c.AutoThreshold, c.CandidateThreshold)
	}
	return nil
}

// Matcher classifies a raw name as AUTO, CANDIDATE or NEW against the current canonical set.
// It never writes and never caches: every call reads the candidate pool fresh.
type Matcher struct {
	candidates CandidateSource
	scorer     *Scorer
	config     Config
	logger     ectologger.Logger
}

func NewMatcher(candidates CandidateSource, config Config, logger ectologger.Logger) *Matcher {
	return &Matcher{
		candidates: candidates,
		scorer:     NewScorer(),
		config:     config,
		logger:     logger,
	}
}

// Resolve finds the best match for rawName among live nodes of nodeType.
func (m *Matcher) Resolve(ctx context.Context, rawName string, nodeType models.NodeType) (models.MatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Matcher.Resolve")
	defer span.End()

	if nodeType == "" {
		nodeType = models.NodeTypeVendor
	}

	nodes, err := m.candidates.ListLive(ctx, nodeType)
	if err != nil {
		tracing.RecordError(span, err)
		return models.MatchResult{}, err
	}

	result := m.Classify(rawName, nodes)

	metrics.RecordResolution(string(nodeType), string(result.MatchType), result.Score)
	m.logger.WithContext(ctx).WithFields(map[string]any{
		"raw_name":     rawName,
		"entity_type":  nodeType,
		"candidates":   len(nodes),
		"match_type":   result.MatchType,
		"match_id":     result.MatchID,
		"score":        result.Score,
		"matched_name": result.MatchedName,
	}).Debug("Resolved entity name")

	return result, nil
}

// Classify scores rawName against every name of every node and applies the tier thresholds.
// Ties keep the first name seen, in node order then primary name before aliases.
func (m *Matcher) Classify(rawName string, nodes []*models.Node) models.MatchResult {
	if len(nodes) == 0 || strings.TrimSpace(rawName) == "" {
		return models.MatchResult{MatchType: models.MatchTypeNew, Score: 0}
	}

	var (
		bestScore = -1.0
		bestID    string
		bestName  string
	)
	for _, node := range nodes {
		for _, name := range node.Names() {
			score := m.scorer.TokenSortRatio(rawName, name)
			if score > bestScore {
				bestScore = score
				bestID = node.ID
				bestName = name
			}
		}
	}

	if bestScore < 0 {
		return models.MatchResult{MatchType: models.MatchTypeNew, Score: 0}
	}

	switch {
	case bestScore >= m.config.AutoThreshold:
		return models.MatchResult{MatchID: bestID, MatchType: models.MatchTypeAuto, Score: bestScore, MatchedName: bestName}
	case bestScore >= m.config.CandidateThreshold:
		return models.MatchResult{MatchID: bestID, MatchType: models.MatchTypeCandidate, Score: bestScore, MatchedName: bestName}
	default:
		return models.MatchResult{MatchType: models.MatchTypeNew, Score: bestScore}
	}
}
