package domain

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed sections.yaml
var sectionCatalogYAML []byte

type SectionInfo struct {
	Key          SectionKey `yaml:"key" json:"key"`
	Title        string     `yaml:"title" json:"title"`
	Instructions string     `yaml:"instructions" json:"-"`
}

var sectionCatalog = mustLoadSectionCatalog(sectionCatalogYAML)

// SectionCatalog returns section metadata in canonical order.
func SectionCatalog() []SectionInfo {
	out := make([]SectionInfo, len(sectionCatalog))
	copy(out, sectionCatalog)
	return out
}

func SectionInfoFor(key SectionKey) SectionInfo {
	for _, info := range sectionCatalog {
		if info.Key == key {
			return info
		}
	}
	return SectionInfo{Key: key, Title: string(key)}
}

func mustLoadSectionCatalog(raw []byte) []SectionInfo {
	catalog, err := parseSectionCatalog(raw)
	if err != nil {
		panic(err)
	}
	return catalog
}

// parseSectionCatalog requires exactly the canonical keys, in canonical order.
func parseSectionCatalog(raw []byte) ([]SectionInfo, error) {
	var doc struct {
		Sections []SectionInfo `yaml:"sections"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse section catalog: %w", err)
	}
	if len(doc.Sections) != len(CanonicalSectionKeys) {
		return nil, fmt.Errorf("section catalog has %d sections, want %d", len(doc.Sections), len(CanonicalSectionKeys))
	}
	for i, info := range doc.Sections {
		if info.Key != CanonicalSectionKeys[i] {
			return nil, fmt.Errorf("section catalog position %d is %s, want %s", i, info.Key, CanonicalSectionKeys[i])
		}
		if info.Title == "" {
			return nil, fmt.Errorf("section %s has no title", info.Key)
		}
	}
	return doc.Sections, nil
}
