package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/Ramsey-B/fern/pkg/apperrors"
	"github.com/Ramsey-B/fern/pkg/models"
)

type proposalRepo struct{ s *Store }

func (r *proposalRepo) Create(ctx context.Context, proposal *models.MergeProposal) error {
	return r.s.write(ctx, func(st *state) error {
		st.proposalSeq++
		proposal.ID = st.proposalSeq
		proposal.Status = models.ProposalStatusPending
		if proposal.ProposedAt.IsZero() {
			proposal.ProposedAt = r.s.now()
		}
		st.proposals[proposal.ID] = cloneProposal(proposal)
		return nil
	})
}

func (r *proposalRepo) Get(ctx context.Context, id int64) (*models.MergeProposal, error) {
	var out *models.MergeProposal
	err := r.s.read(ctx, func(st *state) error {
		p, ok := st.proposals[id]
		if !ok {
			return apperrors.NotFound("merge proposal", fmt.Sprint(id))
		}
		out = cloneProposal(p)
		return nil
	})
	return out, err
}

func (r *proposalRepo) ListPending(ctx context.Context) ([]models.MergeProposal, error) {
	var out []models.MergeProposal
	err := r.s.read(ctx, func(st *state) error {
		for _, p := range st.proposals {
			if p.Status == models.ProposalStatusPending {
				out = append(out, *cloneProposal(p))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ProposedAt.Equal(out[j].ProposedAt) {
			return out[i].ProposedAt.Before(out[j].ProposedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func (r *proposalRepo) Decide(ctx context.Context, id int64, decision models.ProposalDecision) (bool, error) {
	applied := false
	err := r.s.write(ctx, func(st *state) error {
		p, ok := st.proposals[id]
		if !ok {
			return apperrors.NotFound("merge proposal", fmt.Sprint(id))
		}
		if p.Status != models.ProposalStatusPending {
			return nil
		}
		decidedAt := decision.DecidedAt
		p.Status = decision.Status
		p.DecidedBy = decision.DecidedBy
		p.DecidedAt = &decidedAt
		p.DecisionNotes = decision.Notes
		p.RejectionReason = decision.RejectionReason
		applied = true
		return nil
	})
	return applied, err
}
