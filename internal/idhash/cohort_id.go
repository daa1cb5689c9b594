package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// ComputeCohortID computes a deterministic id for a tracked-token set.
// Formula: SHA256(sorted unique token addresses joined by "|")
// Order and duplicates in the input do not change the id.
func ComputeCohortID(tokens []string) string {
	uniq := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		uniq[t] = struct{}{}
	}
	sorted := make([]string, 0, len(uniq))
	for t := range uniq {
		sorted = append(sorted, t)
	}
	sort.Strings(sorted)

	hash := sha256.Sum256([]byte(strings.Join(sorted, "|")))
	return hex.EncodeToString(hash[:])
}
