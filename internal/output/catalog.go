package output

import (
	"encoding/json"
	"io"

	"csvtap/internal/schema"
)

// CatalogEntry describes one discovered stream.
type CatalogEntry struct {
	TapStreamID    string         `json:"tap_stream_id"`
	Stream         string         `json:"stream"`
	Schema         map[string]any `json:"schema"`
	KeyProperties  []string       `json:"key_properties"`
	ReplicationKey string         `json:"replication_key"`
	Metadata       []Metadata     `json:"metadata"`
}

// Metadata is a Singer catalog metadata entry.
type Metadata struct {
	Breadcrumb []string       `json:"breadcrumb"`
	Metadata   map[string]any `json:"metadata"`
}

// Catalog is the document printed in discover mode.
type Catalog struct {
	Streams []CatalogEntry `json:"streams"`
}

// NewCatalogEntry builds the entry of one stream. Key and replication
// columns are marked automatic, every other column available.
func NewCatalogEntry(stream string, s schema.Schema, keys []string) CatalogEntry {
	auto := make(map[string]bool, len(keys)+1)
	for _, k := range keys {
		auto[k] = true
	}
	auto[schema.ReplicationKey] = true

	md := []Metadata{{
		Breadcrumb: []string{},
		Metadata: map[string]any{
			"table-key-properties":      keys,
			"valid-replication-keys":    []string{schema.ReplicationKey},
			"forced-replication-method": "INCREMENTAL",
			"selected-by-default":       true,
		},
	}}
	for _, c := range s.Columns() {
		inclusion := "available"
		if auto[c.Name] {
			inclusion = "automatic"
		}
		md = append(md, Metadata{
			Breadcrumb: []string{"properties", c.Name},
			Metadata:   map[string]any{"inclusion": inclusion},
		})
	}
	return CatalogEntry{
		TapStreamID:    stream,
		Stream:         stream,
		Schema:         s.JSONSchema(),
		KeyProperties:  keys,
		ReplicationKey: schema.ReplicationKey,
		Metadata:       md,
	}
}

// WriteCatalog writes c as indented JSON.
func WriteCatalog(w io.Writer, c Catalog) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(c)
}
