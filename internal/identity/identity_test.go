package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/enrich-cli/internal/model"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases", "Dell Latitude", "dell latitude"},
		{"collapses whitespace", "  Dell \t Latitude\n5540 ", "dell latitude 5540"},
		{"strips diacritics", "Café Crème", "cafe creme"},
		{"empty", "", ""},
		{"only whitespace", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestKey_IncludesType(t *testing.T) {
	product := model.ExtractedItem{Name: "Consulting", Type: model.ItemTypeProduct}
	service := model.ExtractedItem{Name: "Consulting", Type: model.ItemTypeService}

	assert.Equal(t, "consulting|product", Key(product))
	assert.NotEqual(t, Key(product), Key(service))
}

func TestCacheKey_StablePerSourceAndItem(t *testing.T) {
	item := model.ExtractedItem{Name: "Dell Latitude", Type: model.ItemTypeProduct}
	variant := model.ExtractedItem{Name: "  dell   LATITUDE ", Type: model.ItemTypeProduct}

	assert.Equal(t, CacheKey("icecat", item), CacheKey("icecat", variant))
	assert.NotEqual(t, CacheKey("icecat", item), CacheKey("wikidata", item))
	assert.Len(t, CacheKey("icecat", item), 64)
}
