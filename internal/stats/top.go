// Package stats contains statistics calculations and reporting.
package stats

import (
	"sort"

	"github.com/verte-zerg/touchx/internal/model"
)

// TopTransitions returns the n most frequent transitions. n <= 0 keeps all.
func TopTransitions(counts []model.TransitionCount, n int) []model.TransitionCount {
	if len(counts) == 0 {
		return nil
	}
	items := make([]model.TransitionCount, len(counts))
	copy(items, counts)
	sort.Slice(items, func(i, j int) bool {
		if items[i].Count == items[j].Count {
			if items[i].From == items[j].From {
				return items[i].To < items[j].To
			}
			return items[i].From < items[j].From
		}
		return items[i].Count > items[j].Count
	})
	if n > 0 && n < len(items) {
		items = items[:n]
	}
	return items
}
