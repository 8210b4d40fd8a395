// Package service implements the snapshot-cache refresh engine: dedup
// merging, per-tenant incremental refresh, the multi-tenant refresh
// budgeter and response assembly.
package service

import (
	"sort"

	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/model"
)

// Merge combines two record sets, newest wins. The new batch is scanned
// first, then the old one; for a duplicate key the record with the greater
// event time is kept, ties favoring the new batch. Records with no
// derivable identity are dropped. The merge is idempotent: merging the same
// batch twice yields an identical result.
func Merge(oldRecords, newRecords []model.Record) []model.Record {
	byKey := make(map[string]model.Record, len(oldRecords)+len(newRecords))
	order := make([]string, 0, len(oldRecords)+len(newRecords))

	scan := func(records []model.Record) {
		for i := range records {
			r := records[i]
			key := r.DedupKey()
			if key == "" {
				continue
			}
			existing, seen := byKey[key]
			if !seen {
				byKey[key] = r
				order = append(order, key)
				continue
			}
			if eventTimeOrZero(&r) > eventTimeOrZero(&existing) {
				byKey[key] = r
			}
		}
	}
	scan(newRecords)
	scan(oldRecords)

	merged := make([]model.Record, 0, len(order))
	for _, key := range order {
		merged = append(merged, byKey[key])
	}

	// Newest first; keyed order breaks timestamp ties deterministically.
	sort.SliceStable(merged, func(i, j int) bool {
		ti, tj := eventTimeOrZero(&merged[i]), eventTimeOrZero(&merged[j])
		if ti != tj {
			return ti > tj
		}
		return merged[i].DedupKey() < merged[j].DedupKey()
	})
	return merged
}

func eventTimeOrZero(r *model.Record) int64 {
	ts, ok := r.EventTime()
	if !ok {
		return 0
	}
	return ts
}
