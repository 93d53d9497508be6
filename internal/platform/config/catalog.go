package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog lists what the adapters search for. It is read from SOURCES_FILE
// and overrides the matching environment lists when a list is non-empty.
type Catalog struct {
	Video  VideoCatalog `yaml:"video"`
	Trends TrendCatalog `yaml:"trends"`
}

// VideoCatalog describes the video searches and feed channels.
type VideoCatalog struct {
	Queries   []string `yaml:"queries"`
	Countries []string `yaml:"countries"`
	Channels  []string `yaml:"channels"`
}

// TrendCatalog describes the tracked search keywords.
type TrendCatalog struct {
	Keywords  []string `yaml:"keywords"`
	Countries []string `yaml:"countries"`
}

// LoadCatalog reads a YAML catalog from path.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML catalog. Blank entries are dropped and country
// codes upper-cased.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse sources file: %w", err)
	}

	c.Video.Queries = cleanList(c.Video.Queries, false)
	c.Video.Countries = cleanList(c.Video.Countries, true)
	c.Video.Channels = cleanList(c.Video.Channels, false)
	c.Trends.Keywords = cleanList(c.Trends.Keywords, false)
	c.Trends.Countries = cleanList(c.Trends.Countries, true)

	return &c, nil
}

func (c *Catalog) apply(cfg *Config) {
	override(&cfg.YouTubeQueries, c.Video.Queries)
	override(&cfg.YouTubeCountries, c.Video.Countries)
	override(&cfg.YouTubeChannelIDs, c.Video.Channels)
	override(&cfg.TrendsKeywords, c.Trends.Keywords)
	override(&cfg.TrendsCountries, c.Trends.Countries)
}

func override(target *[]string, values []string) {
	if len(values) > 0 {
		*target = values
	}
}

func cleanList(in []string, upper bool) []string {
	out := make([]string, 0, len(in))

	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}

		if upper {
			s = strings.ToUpper(s)
		}

		out = append(out, s)
	}

	return out
}
