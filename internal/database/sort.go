package database

import "slices"

func sortByStoredAt(reports []*StoredReport) {
	slices.SortStableFunc(reports, func(a, b *StoredReport) int {
		return a.StoredAt.Compare(b.StoredAt)
	})
}
