// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"slices"
	"strings"

	"github.com/maruel/natural"
)

// SortTags returns a copy of tags ordered newest first. Tags are compared
// naturally, so numeric runs compare by value ("v10" after "v2", "rc10"
// after "rc2"). Tags that only differ in leading zeros fall back to byte
// order, so distinct tags never compare equal.
func SortTags(tags []string) []string {
	sorted := slices.Clone(tags)
	slices.SortFunc(sorted, func(a, b string) int {
		return compareTags(b, a)
	})
	return sorted
}

func compareTags(a, b string) int {
	switch {
	case a == b:
		return 0
	case natural.Less(a, b):
		return -1
	case natural.Less(b, a):
		return 1
	default:
		return strings.Compare(a, b)
	}
}
