package thread

import (
	"sort"

	"github.com/roach88/nostrcache/internal/model"
)

// KnownFollowers returns the followers of an author that the current user
// follows too, sorted by source key. followers are the Follow edges whose
// destination is the author; followees are the current user's.
func KnownFollowers(currentUser string, followees []string, followers []model.Follow) []model.Follow {
	known := make(map[string]bool, len(followees))
	for _, k := range followees {
		known[k] = true
	}

	var out []model.Follow
	seen := map[string]bool{}
	for _, f := range followers {
		if f.SourceKey == currentUser || !known[f.SourceKey] || seen[f.SourceKey] {
			continue
		}
		seen[f.SourceKey] = true
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceKey < out[j].SourceKey })
	return out
}

// SortByMutualFollowees orders authors by how many of the current user's
// followees they also follow, most first. Ties keep key order.
// followees maps an author key to the keys it follows.
func SortByMutualFollowees(authors []string, currentUser string, followees map[string][]string) []string {
	mine := make(map[string]bool, len(followees[currentUser]))
	for _, k := range followees[currentUser] {
		mine[k] = true
	}

	mutual := make(map[string]int, len(authors))
	for _, a := range authors {
		seen := map[string]bool{}
		for _, k := range followees[a] {
			if mine[k] && !seen[k] {
				seen[k] = true
				mutual[a]++
			}
		}
	}

	out := append([]string(nil), authors...)
	sort.SliceStable(out, func(i, j int) bool {
		if mutual[out[i]] != mutual[out[j]] {
			return mutual[out[i]] > mutual[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}
