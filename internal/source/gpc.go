package source

import (
	"context"
	"strings"

	"github.com/sells-group/enrich-cli/internal/identity"
	"github.com/sells-group/enrich-cli/internal/model"
)

// gpcBrick is one classification node of the compiled-in GS1 GPC subset:
// segment and family titles with their codes, selected by keywords.
type gpcBrick struct {
	SegmentCode string
	Segment     string
	FamilyCode  string
	Family      string
	Keywords    []string
}

// gpcBricks is a pragmatic subset of the GS1 Global Product Classification,
// enough to attach segment/family codes across the routable sectors.
var gpcBricks = []gpcBrick{
	{"50000000", "Food/Beverage", "50180000", "Bread/Bakery Products", []string{"bread", "bakery", "pastry", "dough", "bun"}},
	{"50000000", "Food/Beverage", "50190000", "Prepared/Preserved Foods", []string{"spread", "sauce", "canned", "preserved", "jam", "snack", "chocolate"}},
	{"50000000", "Food/Beverage", "50200000", "Beverages", []string{"beverage", "drink", "juice", "coffee", "tea", "water", "soda"}},
	{"50000000", "Food/Beverage", "50130000", "Milk/Butter/Cream/Yogurts/Cheese", []string{"milk", "cheese", "yogurt", "butter", "dairy", "cream"}},
	{"47000000", "Cleaning/Hygiene Products", "47100000", "Cleaning Products", []string{"cleaning", "detergent", "cleaner", "bleach", "soap"}},
	{"53000000", "Beauty/Personal Care/Hygiene", "53130000", "Cosmetics/Fragrances", []string{"cosmetic", "shampoo", "lotion", "fragrance", "skincare"}},
	{"65000000", "Computing", "65100000", "Computers/Computer Peripherals", []string{"laptop", "computer", "monitor", "keyboard", "printer", "desktop", "tablet"}},
	{"66000000", "Communications", "66110000", "Mobile Communication Devices", []string{"smartphone", "phone", "mobile"}},
	{"68000000", "Audio Visual/Photography", "68270000", "Audio/Video Equipment", []string{"camera", "headphones", "speaker", "television", "audio"}},
	{"78000000", "Electrical Supplies", "78100000", "Electrical Components", []string{"cable", "battery", "charger", "power supply", "adapter", "circuit"}},
	{"72000000", "Building Products", "72100000", "Building Materials", []string{"cement", "concrete", "brick", "timber", "insulation", "drywall", "roofing"}},
	{"73000000", "Tools/Equipment - Power", "73040000", "Power Tools", []string{"drill", "grinder", "saw", "welding", "machine tool"}},
	{"75000000", "Tools/Equipment - Hand", "75030000", "Hand Tools", []string{"wrench", "screwdriver", "hammer", "pliers", "fastener"}},
	{"51000000", "Healthcare", "51100000", "Medical Devices", []string{"medical", "surgical", "syringe", "implant", "catheter", "diagnostic"}},
	{"51000000", "Healthcare", "51160000", "Pharmaceutical Drugs", []string{"pharmaceutical", "drug", "tablet dose", "medication", "vaccine"}},
	{"94000000", "Services", "94050000", "Business Services", []string{"consulting", "subscription", "maintenance", "support", "license", "training", "audit"}},
}

// GS1GPC classifies items into GS1 Global Product Classification segments and
// families via keyword evidence. Fully local; universal fallback.
type GS1GPC struct{}

// NewGS1GPC creates the taxonomy source.
func NewGS1GPC() *GS1GPC { return &GS1GPC{} }

func (s *GS1GPC) Name() string { return "gs1_gpc" }

func (s *GS1GPC) SupportedSectors() []model.Sector { return nil }

func (s *GS1GPC) Enabled() bool { return true }

func (s *GS1GPC) Init(_ context.Context) {}

func (s *GS1GPC) Enrich(_ context.Context, item model.ExtractedItem, _ Options) (model.EnrichmentResult, error) {
	text := identity.Normalize(item.Name + " " + item.Description)
	b := newResult(s.Name(), item)

	var best *gpcBrick
	bestHits := 0
	var bestWords []string
	for i := range gpcBricks {
		hits := 0
		var words []string
		for _, kw := range gpcBricks[i].Keywords {
			if containsKeyword(text, kw) {
				hits++
				words = append(words, kw)
			}
		}
		if hits > bestHits {
			bestHits = hits
			best = &gpcBricks[i]
			bestWords = words
		}
	}

	if best == nil {
		b.reason("no GPC family keywords matched")
		return b.done(0), nil
	}

	b.set("gpc_segment_code", best.SegmentCode)
	b.set("gpc_segment", best.Segment)
	b.set("gpc_family_code", best.FamilyCode)
	b.set("gpc_family", best.Family)
	b.set("category", best.Family)
	b.reason("GPC %s > %s via keywords: %s", best.Segment, best.Family, strings.Join(bestWords, ", "))

	// Keyword classification is coarse; confidence grows with corroborating
	// keywords but stays below lookup-based sources.
	confidence := 0.35 + 0.15*float64(bestHits-1)
	if confidence > 0.65 {
		confidence = 0.65
	}
	return b.done(confidence), nil
}

// containsKeyword matches single words on token boundaries and multi-word
// phrases as substrings of the normalized text.
func containsKeyword(text, kw string) bool {
	if strings.Contains(kw, " ") {
		return strings.Contains(text, kw)
	}
	for _, tok := range strings.Fields(text) {
		if tok == kw {
			return true
		}
	}
	return false
}
