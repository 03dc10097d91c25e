package store

import (
	"context"
	"fmt"
)

// StageCount summarizes one stage's queue: items currently claimable and
// items already recorded done.
type StageCount struct {
	Stage    string
	Eligible int
	Done     int
}

// PipelineCounts reports eligible and completed counts for every stage, in
// pipeline order.
func (s *Store) PipelineCounts(ctx context.Context, studies []string) ([]StageCount, error) {
	entries := []struct {
		stage string
		spec  ClaimSpec
	}{
		{"decrypt", decryptClaimSpec(studies)},
		{"metadata", metadataClaimSpec(studies)},
		{"quickqc", quickQCClaimSpec(studies)},
		{"split", splitClaimSpec(studies)},
		{"faceext", faceExtClaimSpec(studies, nil)},
		{"faceqc", faceQCClaimSpec(studies)},
		{"faceload", faceLoadClaimSpec(studies)},
		{"transcribe", transcribeClaimSpec(studies)},
		{"report", reportClaimSpec(studies)},
	}

	counts := make([]StageCount, 0, len(entries))
	for _, entry := range entries {
		eligible, err := s.countEligible(ctx, entry.spec)
		if err != nil {
			return nil, fmt.Errorf("count %s eligible: %w", entry.stage, err)
		}

		var done int
		doneQuery := fmt.Sprintf("SELECT COUNT(DISTINCT %s) FROM %s", entry.spec.OwnKey, entry.spec.Own)
		if err := s.db.QueryRowContext(ctx, doneQuery).Scan(&done); err != nil {
			return nil, fmt.Errorf("count %s done: %w", entry.stage, err)
		}

		counts = append(counts, StageCount{Stage: entry.stage, Eligible: eligible, Done: done})
	}
	return counts, nil
}
