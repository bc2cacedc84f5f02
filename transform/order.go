package transform

import (
	"cmp"
	"slices"

	"github.com/razeghi71/csvt/table"
)

type sortKey struct {
	id   string
	rank int
}

// sortKeys returns the ranked identifiers by ascending absolute rank.
func (t *Transformation) sortKeys() []sortKey {
	var keys []sortKey
	for _, s := range t.slots {
		if s.order != 0 {
			keys = append(keys, sortKey{id: s.id, rank: s.order})
		}
	}
	slices.SortStableFunc(keys, func(a, b sortKey) int {
		return cmp.Compare(abs(a.rank), abs(b.rank))
	})
	return keys
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// sortRecords sorts rows in place by keys; a negative rank sorts that key
// descending. Rows with equal keys keep their relative order.
func sortRecords(rows []table.Record, keys []sortKey) {
	if len(keys) == 0 {
		return
	}
	slices.SortStableFunc(rows, func(a, b table.Record) int {
		for _, k := range keys {
			c := table.Compare(a[k.id], b[k.id])
			if k.rank < 0 {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
}
