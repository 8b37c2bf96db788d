package sector

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/enrich-cli/internal/model"
)

// defaultKeywords maps each sector to the phrases scored against item text.
// Multi-word phrases are matched as substrings of the normalized text and
// weigh more on tie-breaks (longer, more specific matches win).
var defaultKeywords = map[model.Sector][]string{
	model.SectorFood: {
		"food", "beverage", "drink", "snack", "spread", "chocolate", "coffee",
		"tea", "juice", "dairy", "milk", "cheese", "bread", "bakery", "organic",
		"gluten free", "pasta", "sauce", "cereal", "frozen food", "ingredients",
		"nutrition", "flavor", "edible", "grocery",
	},
	model.SectorConsumerGoods: {
		"consumer", "household", "cleaning", "detergent", "shampoo", "cosmetic",
		"toy", "apparel", "clothing", "footwear", "furniture", "kitchenware",
		"personal care", "home care", "packaging", "retail", "fmcg",
	},
	model.SectorElectronics: {
		"electronic", "laptop", "computer", "monitor", "smartphone", "tablet",
		"router", "printer", "camera", "processor", "semiconductor", "battery",
		"usb", "hdmi", "wireless", "display", "circuit board", "power supply",
		"hard drive", "ssd", "memory module",
	},
	model.SectorIndustrial: {
		"industrial", "machinery", "hydraulic", "pneumatic", "bearing", "valve",
		"pump", "compressor", "motor", "gearbox", "conveyor", "welding",
		"fastener", "lubricant", "steel", "alloy", "machine tool",
		"spare parts", "cnc", "forklift",
	},
	model.SectorMedical: {
		"medical", "surgical", "diagnostic", "pharmaceutical", "syringe",
		"implant", "sterile", "clinical", "hospital", "patient", "dental",
		"orthopedic", "medical device", "laboratory equipment", "bandage",
		"prosthetic", "catheter",
	},
	model.SectorConstruction: {
		"construction", "cement", "concrete", "scaffolding", "drywall",
		"insulation", "roofing", "plumbing", "excavator", "rebar", "mortar",
		"building material", "timber", "brick", "aggregate", "formwork",
	},
	model.SectorServices: {
		"service", "consulting", "maintenance", "subscription", "support",
		"training", "installation", "license", "saas", "cloud hosting",
		"outsourcing", "audit", "managed service", "professional services",
		"repair service", "logistics",
	},
}

// defaultExemplars are the phrases embedded once per sector for the semantic
// fallback. One short, representative phrase per sector keeps the lookup to a
// single embedding batch.
var defaultExemplars = map[model.Sector]string{
	model.SectorFood:          "packaged food and beverage products sold for consumption",
	model.SectorConsumerGoods: "everyday consumer goods such as household and personal care items",
	model.SectorElectronics:   "electronic devices, computer hardware and components",
	model.SectorIndustrial:    "industrial machinery, tools and mechanical components",
	model.SectorMedical:       "medical devices, clinical supplies and pharmaceutical products",
	model.SectorConstruction:  "construction materials and building equipment",
	model.SectorServices:      "professional, maintenance and subscription services",
}

// keywordFile is the YAML shape for overriding the compiled-in keyword table.
type keywordFile struct {
	Sectors map[string][]string `yaml:"sectors"`
}

// LoadKeywords reads a sector→keywords override file and merges it over the
// defaults. Sectors absent from the file keep their default keyword sets; an
// unknown sector name is a configuration defect and fails loudly.
func LoadKeywords(path string) (map[model.Sector][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "sector: read keywords %s", path)
	}

	var file keywordFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrap(err, "sector: parse keywords")
	}

	merged := make(map[model.Sector][]string, len(defaultKeywords))
	for s, kws := range defaultKeywords {
		merged[s] = kws
	}
	for name, kws := range file.Sectors {
		s := model.Sector(name)
		if _, ok := defaultKeywords[s]; !ok {
			return nil, eris.Errorf("sector: unknown sector %q in keywords file", name)
		}
		merged[s] = kws
	}
	return merged, nil
}

// DefaultKeywords returns a copy of the compiled-in keyword table.
func DefaultKeywords() map[model.Sector][]string {
	out := make(map[model.Sector][]string, len(defaultKeywords))
	for s, kws := range defaultKeywords {
		out[s] = append([]string(nil), kws...)
	}
	return out
}
