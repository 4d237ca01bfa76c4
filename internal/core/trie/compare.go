package trie

// Compare orders a against b position by position over the shared length.
// A wildcard on either side compares equal. When the shared positions are
// indistinguishable the shorter key sorts first.
func Compare(a, b Key) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if c := compareSymbol(a[i], b[i]); c != 0 {
			return c
		}
	}

	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// ComparePrefix orders query against stored for prefix descent. Zero means
// stored is a prefix of query: query is at least as long as stored and
// indistinguishable over stored's length. A stored key longer than an
// undistinguished query sorts after it.
func ComparePrefix(query, stored Key) int {
	n := min(len(query), len(stored))
	for i := 0; i < n; i++ {
		if c := compareSymbol(query[i], stored[i]); c != 0 {
			return c
		}
	}

	if len(query) >= len(stored) {
		return 0
	}
	return -1
}

func compareSymbol(a, b Symbol) int {
	if a == Wildcard || b == Wildcard {
		return 0
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
