// Package sampler selects a fixed number of representative screenshots for
// the timeline preview strip. Selection is by nearest-timestamp matching
// against evenly spaced target times over the capture window.
package sampler

import "sort"

// Select picks slots items from items, one per evenly spaced target time
// between the earliest and latest timestamp. Records pass through unchanged;
// timestampMs extracts the millisecond timestamp from a record.
//
// The input order does not matter; results are in ascending target order so
// index i corresponds to timeline position i/(slots-1). The same item may be
// selected for multiple slots when there are fewer items than slots. When two
// items are equidistant from a target, the earlier timestamp wins.
func Select[T any](items []T, timestampMs func(T) int64, slots int) []T {
	if slots <= 0 || len(items) == 0 {
		return nil
	}

	sorted := make([]T, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return timestampMs(sorted[i]) < timestampMs(sorted[j])
	})

	minTs := timestampMs(sorted[0])
	maxTs := timestampMs(sorted[len(sorted)-1])

	result := make([]T, 0, slots)
	for i := 0; i < slots; i++ {
		var target float64
		if slots == 1 {
			target = float64(minTs+maxTs) / 2
		} else {
			target = float64(minTs) + float64(i)/float64(slots-1)*float64(maxTs-minTs)
		}
		result = append(result, nearest(sorted, timestampMs, target))
	}
	return result
}

// nearest returns the item whose timestamp is closest to target. Items are
// sorted ascending, so scanning keeps the earliest item on exact ties.
func nearest[T any](sorted []T, timestampMs func(T) int64, target float64) T {
	best := sorted[0]
	bestDist := distance(timestampMs(best), target)
	for _, item := range sorted[1:] {
		if d := distance(timestampMs(item), target); d < bestDist {
			best = item
			bestDist = d
		}
	}
	return best
}

func distance(ts int64, target float64) float64 {
	d := float64(ts) - target
	if d < 0 {
		return -d
	}
	return d
}
