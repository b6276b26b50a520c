package store

import (
	"sort"
	"time"
)

// sortByCreatedAt orders entities oldest-first so map iteration order never
// leaks into listings.
func sortByCreatedAt[T any](items []*T, createdAt func(*T) time.Time) {
	sort.SliceStable(items, func(i, j int) bool {
		return createdAt(items[i]).Before(createdAt(items[j]))
	})
}
