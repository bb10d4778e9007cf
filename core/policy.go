package core

import (
	"sort"

	"pkt.systems/drowse/schema"
)

// SelectForHibernation names the tabs a sweep should hibernate so that
// the number of active tabs no longer exceeds ceiling. Pure and
// deterministic: identical input always yields identical output.
//
// Candidacy rules, in order:
//  1. the foreground tab and pinned tabs are never candidates;
//  2. only active tabs are candidates (transitional and hibernated tabs
//     hold no evictable resource, or are already on their way);
//  3. remaining candidates rank by ascending last access, ties broken by
//     ascending id.
//
// A ceiling of 0 or below means unlimited: no candidates.
func SelectForHibernation(tabs []schema.TabSnapshot, level schema.PressureLevel, ceiling int) []schema.TabID {
	if ceiling <= 0 {
		return nil
	}
	active := 0
	candidates := make([]schema.TabSnapshot, 0, len(tabs))
	for _, tab := range tabs {
		if tab.State != schema.TabStateActive {
			continue
		}
		active++
		if tab.Foreground || tab.Pinned {
			continue
		}
		candidates = append(candidates, tab)
	}
	excess := active - ceiling
	if excess <= 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].LastAccessed.Equal(candidates[j].LastAccessed) {
			return candidates[i].ID < candidates[j].ID
		}
		return candidates[i].LastAccessed.Before(candidates[j].LastAccessed)
	})
	if excess > len(candidates) {
		excess = len(candidates)
	}
	selected := make([]schema.TabID, 0, excess)
	for _, tab := range candidates[:excess] {
		selected = append(selected, tab.ID)
	}
	return selected
}
