package trie

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(s string) Key { return FromBytes([]byte(s)) }

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b Key
		want int
	}{
		{"equal", key("abc"), key("abc"), 0},
		{"less by byte", key("abb"), key("abc"), -1},
		{"greater by byte", key("abd"), key("abc"), 1},
		{"shorter first", key("ab"), key("abc"), -1},
		{"longer last", key("abcd"), key("abc"), 1},
		{"wildcard in a", Key{'a', Wildcard, 'c'}, key("abc"), 0},
		{"wildcard in b", key("axc"), Key{'a', Wildcard, 'c'}, 0},
		{"wildcard then difference", Key{Wildcard, 'a'}, key("zb"), -1},
		{"empty keys", Key{}, Key{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.a, tt.b))
		})
	}
}

func TestComparePrefix(t *testing.T) {
	tests := []struct {
		name          string
		query, stored Key
		want          int
	}{
		{"stored is prefix", key("abcd"), key("ab"), 0},
		{"identical", key("ab"), key("ab"), 0},
		{"stored longer", key("ab"), key("abc"), -1},
		{"differs low", key("aa"), key("ab"), -1},
		{"differs high", key("ac"), key("ab"), 1},
		{"wildcard stored", key("a2c"), Key{'a', Wildcard, 'c'}, 0},
		{"wildcard query", Key{Wildcard, 'b'}, key("q"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComparePrefix(tt.query, tt.stored))
		})
	}
}

func abcIndex() *Index[string] {
	return Build([]Entry[string]{
		{Key: key("abc"), Value: "abc"},
		{Key: key("a"), Value: "a"},
		{Key: key("ab"), Value: "ab"},
	})
}

func TestGet(t *testing.T) {
	index := abcIndex()

	v, ok := index.Get(key("ab"))
	require.True(t, ok)
	assert.Equal(t, "ab", v)

	_, ok = index.Get(key("abd"))
	assert.False(t, ok)

	_, ok = index.Get(key("abcd"))
	assert.False(t, ok, "prefix matches are not exact matches")

	v, ok = index.Get(Key{'a', Wildcard})
	require.True(t, ok)
	assert.Equal(t, "ab", v)
}

func TestGetAllPrefixMatchesScenario(t *testing.T) {
	index := abcIndex()

	got := index.GetAllPrefixMatches(FromBytes([]byte{0x61, 0x62, 0x63, 0x64}))
	assert.ElementsMatch(t, []string{"a", "ab", "abc"}, got)
}

func TestGetFirstPrefixMatchWildcard(t *testing.T) {
	index := New(&Node[string]{Key: Key{1, Wildcard, 3}, Value: "wild"})

	v, ok := index.GetFirstPrefixMatch(Key{1, 2, 3})
	require.True(t, ok)
	assert.Equal(t, "wild", v)

	_, ok = index.GetFirstPrefixMatch(Key{1, 2})
	assert.False(t, ok, "a stored key longer than the query is not a match")
}

func TestGetAllPrefixMatchesDifferentLengths(t *testing.T) {
	index := Build([]Entry[string]{
		{Key: Key{1}, Value: "one"},
		{Key: Key{1, 2, 3}, Value: "one-two-three"},
		{Key: Key{2}, Value: "two"},
		{Key: Key{0, 9}, Value: "zero-nine"},
	})

	got := index.GetAllPrefixMatches(Key{1, 2, 3, 4, 5})
	assert.ElementsMatch(t, []string{"one", "one-two-three"}, got)
}

func TestPrefixBelowExtensionStillMatches(t *testing.T) {
	index := Build([]Entry[string]{
		{Key: Key{1}, Value: "one"},
		{Key: Key{1, 1}, Value: "one-one"},
	})

	assert.Equal(t, []string{"one"}, index.GetAllPrefixMatches(Key{1, 2}))
	v, ok := index.GetFirstPrefixMatch(Key{1, 2})
	require.True(t, ok)
	assert.Equal(t, "one", v)

	assert.ElementsMatch(t, []string{"one", "one-one"}, index.GetAllPrefixMatches(Key{1, 1, 7}))
}

// keysOver lists every key of length 1..maxLen over alphabet.
func keysOver(alphabet []Symbol, maxLen int) []Key {
	var out []Key
	level := []Key{{}}
	for n := 1; n <= maxLen; n++ {
		var next []Key
		for _, prefix := range level {
			for _, s := range alphabet {
				k := append(append(Key{}, prefix...), s)
				next = append(next, k)
			}
		}
		out = append(out, next...)
		level = next
	}
	return out
}

func assertPrefixMatchesComplete(t *testing.T, stored []Key) {
	t.Helper()
	entries := make([]Entry[string], len(stored))
	for i, k := range stored {
		entries[i] = Entry[string]{Key: k, Value: k.String()}
	}
	index := Build(entries)

	for _, q := range keysOver([]Symbol{1, 2, 3}, 4) {
		var want []string
		for _, k := range stored {
			if isPrefix(k, q) {
				want = append(want, k.String())
			}
		}
		assert.ElementsMatch(t, want, index.GetAllPrefixMatches(q), "query %s over %v", q, stored)

		v, ok := index.GetFirstPrefixMatch(q)
		assert.Equal(t, len(want) > 0, ok, "query %s over %v", q, stored)
		if ok {
			assert.Contains(t, want, v)
		}
	}
}

func TestBuildKeepsEveryPrefixReachable(t *testing.T) {
	assertPrefixMatchesComplete(t, keysOver([]Symbol{1, 2}, 3))

	small := keysOver([]Symbol{1, 2}, 2)
	for mask := 1; mask < 1<<len(small); mask++ {
		var stored []Key
		for i, k := range small {
			if mask&(1<<i) != 0 {
				stored = append(stored, k)
			}
		}
		assertPrefixMatchesComplete(t, stored)
	}
}

func TestGetAllPrefixMatchesUnbalanced(t *testing.T) {
	// Ascending insertion order degenerates into a right spine.
	root := &Node[string]{Key: key("a"), Value: "a",
		Right: &Node[string]{Key: key("ab"), Value: "ab",
			Right: &Node[string]{Key: key("abc"), Value: "abc"},
		},
	}
	index := New(root)

	assert.Equal(t, 3, index.Len())
	assert.Equal(t, 3, index.Height())
	assert.Equal(t, []string{"a", "ab", "abc"}, index.GetAllPrefixMatches(key("abcd")))

	v, ok := index.GetFirstPrefixMatch(key("abcd"))
	require.True(t, ok)
	assert.Equal(t, "a", v)
}

func TestEmptyIndex(t *testing.T) {
	index := Build[int](nil)

	_, ok := index.Get(key("a"))
	assert.False(t, ok)
	_, ok = index.GetFirstPrefixMatch(key("a"))
	assert.False(t, ok)
	assert.Empty(t, index.GetAllPrefixMatches(key("a")))
}

func TestBuildIsBalanced(t *testing.T) {
	entries := make([]Entry[int], 0, 255)
	for i := 0; i < 255; i++ {
		entries = append(entries, Entry[int]{Key: Key{Symbol(i)}, Value: i})
	}
	index := Build(entries)

	assert.Equal(t, 255, index.Len())
	assert.Equal(t, 8, index.Height())

	for i := 0; i < 255; i++ {
		v, ok := index.Get(Key{Symbol(i)})
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}

func TestParsePattern(t *testing.T) {
	k, err := ParsePattern("89 50 ?? 47")
	require.NoError(t, err)
	assert.Equal(t, Key{0x89, 0x50, Wildcard, 0x47}, k)
	assert.Equal(t, "89 50 ?? 47", k.String())

	_, err = ParsePattern("")
	assert.ErrorIs(t, err, ErrInvalidPattern)

	_, err = ParsePattern("zz")
	assert.ErrorIs(t, err, ErrInvalidPattern)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(Key{0, 255, Wildcard}))
	assert.ErrorIs(t, Validate(Key{1, 300}), ErrInvalidSymbol)
}
