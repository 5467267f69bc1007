// Package textutil holds character-budget helpers shared by the parser,
// chunker and adapters. Budgets count runes, not bytes.
package textutil

import "unicode/utf8"

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Len returns the number of runes in s.
func Len(s string) int {
	return utf8.RuneCountInString(s)
}
