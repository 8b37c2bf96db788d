// Package model defines the core domain types shared across the enrichment
// pipeline: extracted items, sector detection results, per-source enrichment
// results, and the fully enriched item with provenance.
package model

import "time"

// ItemType categorizes an extracted item.
type ItemType string

const (
	ItemTypeProduct ItemType = "product"
	ItemTypeService ItemType = "service"
)

// ExtractedItem is a sparse record produced by the upstream extraction
// pipeline. It is immutable input; enrichment never mutates it in place.
type ExtractedItem struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Type        ItemType `json:"type"`
	Vendor      string   `json:"vendor,omitempty"`
	Category    string   `json:"category,omitempty"`
}

// Sector is a coarse industry classification used to route enrichment to
// relevant sources.
type Sector string

const (
	SectorFood          Sector = "food"
	SectorConsumerGoods Sector = "consumer_goods"
	SectorElectronics   Sector = "electronics"
	SectorIndustrial    Sector = "industrial"
	SectorMedical       Sector = "medical"
	SectorConstruction  Sector = "construction"
	SectorServices      Sector = "services"
	SectorUnknown       Sector = "unknown"
)

// AllSectors lists every routable sector, excluding unknown.
var AllSectors = []Sector{
	SectorFood,
	SectorConsumerGoods,
	SectorElectronics,
	SectorIndustrial,
	SectorMedical,
	SectorConstruction,
	SectorServices,
}

// DetectionMethod describes how a sector was determined.
type DetectionMethod string

const (
	DetectionKeyword  DetectionMethod = "keyword"
	DetectionSemantic DetectionMethod = "semantic"
)

// SectorDetectionResult is the outcome of sector detection for one item.
type SectorDetectionResult struct {
	Sector     Sector          `json:"sector"`
	Confidence float64         `json:"confidence"`
	Method     DetectionMethod `json:"method"`
	Reasoning  []string        `json:"reasoning,omitempty"`
}

// Provenance records which sources were consulted for an item and which
// source won each merged field.
type Provenance struct {
	SessionID      string            `json:"session_id"`
	SourcesQueried []string          `json:"sources_queried"`
	SourcesMatched []string          `json:"sources_matched"`
	FieldWinners   map[string]string `json:"field_winners,omitempty"`
	ProcessingMS   int64             `json:"processing_ms"`
}

// EnrichedItem is an ExtractedItem augmented with sector detection, merged
// field values, per-source enrichment results, and provenance. It is created
// by a single orchestrator call and immutable after return.
type EnrichedItem struct {
	ExtractedItem

	Sector            SectorDetectionResult `json:"_sector"`
	Fields            map[string]any        `json:"fields,omitempty"`
	Enrichment        []EnrichmentResult    `json:"_enrichment"`
	ConfidenceOverall float64               `json:"_confidence_overall"`
	Provenance        Provenance            `json:"_enrichment_provenance"`
	MetadataID        string                `json:"_enrichment_metadata_id,omitempty"`
}

// EnrichmentStats summarizes a batch enrichment run.
type EnrichmentStats struct {
	Total         int     `json:"total"`
	Enriched      int     `json:"enriched"`
	AvgConfidence float64 `json:"avg_confidence"`
	ProcessingMS  int64   `json:"processing_time_ms"`
}

// EnrichmentMetadata is the persisted record of one enrichment, keyed by
// (tenant, item name, item type) at the store boundary.
type EnrichmentMetadata struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	ItemName       string    `json:"item_name"`
	ItemType       ItemType  `json:"item_type"`
	Sector         Sector    `json:"sector"`
	Confidence     float64   `json:"confidence"`
	SourcesMatched []string  `json:"sources_matched"`
	CreatedAt      time.Time `json:"created_at"`
}

// SectorStats aggregates persisted enrichment metadata by detected sector.
type SectorStats struct {
	Sector        Sector  `json:"sector"`
	Count         int     `json:"count"`
	AvgConfidence float64 `json:"avg_confidence"`
}
