// Package identity derives stable identity keys for extracted items. Cache
// entries and metadata rows key off the same normalized form so that
// trivially different spellings of one item converge.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/enrich-cli/internal/model"
)

// foldTransform strips diacritics: decompose, drop combining marks, recompose.
var foldTransform = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases, strips diacritics, and collapses interior whitespace.
func Normalize(s string) string {
	folded, _, err := transform.String(foldTransform, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// Key returns the normalized identity of an item: normalized name plus type.
func Key(item model.ExtractedItem) string {
	return Normalize(item.Name) + "|" + string(item.Type)
}

// CacheKey returns the deterministic cache key for a (source, item) pair.
func CacheKey(source string, item model.ExtractedItem) string {
	sum := sha256.Sum256([]byte(source + "|" + Key(item)))
	return hex.EncodeToString(sum[:])
}
