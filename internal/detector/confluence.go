package detector

import (
	"sort"

	"ZoneSentinel/internal/model"
)

// ResolveConfluence annotates each zone with its nesting inside zones of
// more senior timeframes. A parent must have a strictly lower rank and fully
// enclose the child interval; only same-direction parents count. Candidates
// are scanned from the nearest senior rank upward, and the first match found
// becomes the primary parent. Zones are updated in place; the input order is
// left untouched.
func ResolveConfluence(zones []*model.Zone) {
	ordered := append([]*model.Zone(nil), zones...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Rank < ordered[j].Rank
	})

	for i, child := range ordered {
		child.ParentID = ""
		child.ParentTimeframe = ""
		child.ParentCount = 0
		child.Nested = false

		for j := i - 1; j >= 0; j-- {
			parent := ordered[j]
			if parent.Rank >= child.Rank || !parent.Encloses(child) {
				continue
			}
			if parent.Direction != child.Direction {
				continue
			}
			child.Nested = true
			child.ParentCount++
			if child.ParentID == "" {
				child.ParentID = parent.ID
				child.ParentTimeframe = parent.Timeframe
			}
		}
	}
}
