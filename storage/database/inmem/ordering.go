package inmemdb

import (
	"sort"
	"strings"
	"time"

	"github.com/wtlassist/backend/core"
)

// orderBy sorts items following ordering; cmp compares two items on a DB column.
// Items that compare equal on every ordering keep their order.
func orderBy[T any](items []T, ordering []core.DBOrdering, cmp func(a, b T, column string) int) {
	if len(ordering) == 0 {
		return
	}
	sort.SliceStable(items, func(i, j int) bool {
		for _, ord := range ordering {
			c := cmp(items[i], items[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}

func cmpStrings(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

func cmpTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}

func cmpTimePtrs(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	default:
		return cmpTimes(*a, *b)
	}
}

func cmpBools(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}

func cmpInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
