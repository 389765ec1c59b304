package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/Ramsey-B/fern/pkg/apperrors"
	"github.com/Ramsey-B/fern/pkg/models"
)

type taskRepo struct{ s *Store }

func (r *taskRepo) Create(ctx context.Context, task *models.ReconciliationTask) error {
	return r.s.write(ctx, func(st *state) error {
		st.taskSeq++
		task.ID = st.taskSeq
		task.Status = models.TaskStatusPending
		if task.CreatedAt.IsZero() {
			task.CreatedAt = r.s.now()
		}
		stored := *task
		st.tasks[task.ID] = &stored
		return nil
	})
}

func (r *taskRepo) Get(ctx context.Context, id int64) (*models.ReconciliationTask, error) {
	var out *models.ReconciliationTask
	err := r.s.read(ctx, func(st *state) error {
		t, ok := st.tasks[id]
		if !ok {
			return apperrors.NotFound("reconciliation task", fmt.Sprint(id))
		}
		c := *t
		out = &c
		return nil
	})
	return out, err
}

func (r *taskRepo) ListPending(ctx context.Context, limit int) ([]models.ReconciliationTask, error) {
	var out []models.ReconciliationTask
	err := r.s.read(ctx, func(st *state) error {
		for _, t := range st.tasks {
			if t.Status == models.TaskStatusPending {
				out = append(out, *t)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r *taskRepo) FindPending(ctx context.Context, source, sourceID string) (*models.ReconciliationTask, error) {
	var out *models.ReconciliationTask
	err := r.s.read(ctx, func(st *state) error {
		for _, t := range st.tasks {
			if t.Status != models.TaskStatusPending || t.Record.Source != source || t.Record.SourceID != sourceID {
				continue
			}
			if out == nil || t.ID < out.ID {
				c := *t
				out = &c
			}
		}
		if out == nil {
			return apperrors.NotFound("reconciliation task", source+"/"+sourceID)
		}
		return nil
	})
	return out, err
}

func (r *taskRepo) Resolve(ctx context.Context, id int64, resolution models.TaskResolution) (bool, error) {
	applied := false
	err := r.s.write(ctx, func(st *state) error {
		t, ok := st.tasks[id]
		if !ok {
			return apperrors.NotFound("reconciliation task", fmt.Sprint(id))
		}
		if t.Status != models.TaskStatusPending {
			return nil
		}
		resolvedAt := resolution.ResolvedAt
		t.Status = models.TaskStatusResolved
		t.Resolution = resolution.Action
		t.ResolvedBy = resolution.ResolvedBy
		t.ResolvedEntityID = resolution.ResolvedEntityID
		t.ResolvedAt = &resolvedAt
		applied = true
		return nil
	})
	return applied, err
}
