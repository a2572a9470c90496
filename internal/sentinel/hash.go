// Package sentinel implements the deterministic anomaly detectors.
package sentinel

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/models"
)

// CanonicalizeColumns orders columns by ordinal so semantically equal column
// lists always serialize identically.
func CanonicalizeColumns(cols []models.Column) []models.Column {
	out := make([]models.Column, len(cols))
	copy(out, cols)
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out
}

// SnapshotHash computes the content address of a column list: SHA-256 over a
// canonical serialization. Equal columns in equal order produce equal hashes.
func SnapshotHash(cols []models.Column) string {
	canonical := CanonicalizeColumns(cols)
	var b strings.Builder
	for _, c := range canonical {
		fmt.Fprintf(&b, "%d|%s|%s|%t\n", c.Ordinal, strings.ToLower(c.Name), normalizeType(c.Type), c.Nullable)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// normalizeType lowercases a type name, keeping parameterization so
// VARCHAR(64) and VARCHAR(255) hash differently.
func normalizeType(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

// baseType strips parameterization for rename compatibility checks, so an
// inferred rename tolerates VARCHAR(64) vs VARCHAR(255).
func baseType(t string) string {
	normalized := normalizeType(t)
	if idx := strings.IndexByte(normalized, '('); idx >= 0 {
		normalized = normalized[:idx]
	}
	return strings.TrimSpace(normalized)
}

// typesCompatible reports whether a rename between the two types is
// plausible.
func typesCompatible(a, b string) bool {
	return baseType(a) == baseType(b)
}
