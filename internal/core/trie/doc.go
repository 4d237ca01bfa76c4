/*
Package trie implements a byte-sequence prefix index.

# Overview

The index is a binary search tree keyed on sequences of byte symbols. One
reserved symbol, Wildcard, matches any byte at its position and may appear
in stored keys and in query keys alike. The tree answers three queries:

  - Get: exact lookup (identical length, equal modulo wildcards)
  - GetFirstPrefixMatch: the first stored key that prefixes the query
  - GetAllPrefixMatches: every stored key that prefixes the query

# Construction

The tree does not balance itself and exposes no insertion API. Callers
either assemble nodes directly or use Build, which sorts the entries and
produces a balanced tree. Duplicate or overlapping keys are not validated.

# Usage

	index := trie.Build([]trie.Entry[string]{
		{Key: trie.FromBytes([]byte("a")), Value: "a"},
		{Key: trie.FromBytes([]byte("ab")), Value: "ab"},
	})

	matches := index.GetAllPrefixMatches(trie.FromBytes([]byte("abc")))
*/
package trie
