package memory

import (
	"context"
	"sort"

	"github.com/Ramsey-B/fern/pkg/models"
)

type auditRepo struct{ s *Store }

func (r *auditRepo) Append(ctx context.Context, entry *models.AuditEntry) error {
	return r.s.write(ctx, func(st *state) error {
		st.auditSeq++
		entry.ID = st.auditSeq
		if entry.Timestamp.IsZero() {
			entry.Timestamp = r.s.now()
		}
		stored := *entry
		stored.Details = copyDetails(entry.Details)
		st.audit = append(st.audit, stored)
		return nil
	})
}

func (r *auditRepo) ListByTarget(ctx context.Context, targetID string) ([]models.AuditEntry, error) {
	var out []models.AuditEntry
	err := r.s.read(ctx, func(st *state) error {
		for _, e := range st.audit {
			if e.TargetID == targetID {
				e.Details = copyDetails(e.Details)
				out = append(out, e)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})
	return out, err
}

func copyDetails(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
