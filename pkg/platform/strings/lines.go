// Package strings normalises the list-valued settings admins edit by hand.
package strings

import "strings"

// SplitLines splits a newline-separated list (the blacklist text format)
// and normalises it with NormalizeList.
func SplitLines(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return NormalizeList(strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n"))
}

// NormalizeList trims and lowercases every value, then drops blanks and
// repeats, keeping first-seen order. Lowercasing makes IPv6 spellings
// compare equal. The result is never nil.
func NormalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// JoinLines is the inverse of SplitLines.
func JoinLines(values []string) string {
	return strings.Join(values, "\n")
}
