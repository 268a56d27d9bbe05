// Package messages loads operator-supplied notification texts.
package messages

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Text overrides the title and body of one notification kind. Body may
// reference payload keys as $key or ${key}.
type Text struct {
	Title string `yaml:"title" json:"title"`
	Body  string `yaml:"body" json:"body"`
}

// Catalog maps a notification kind to its text.
type Catalog map[string]Text

// Load reads a YAML (or JSON) catalog file.
func Load(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read messages file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a catalog and rejects entries without a title.
func Parse(data []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse messages file: %w", err)
	}
	for kind, t := range c {
		if strings.TrimSpace(t.Title) == "" {
			return nil, fmt.Errorf("message %q has no title", kind)
		}
	}
	return c, nil
}

// Lookup returns the text for kind, if any.
func (c Catalog) Lookup(kind string) (Text, bool) {
	t, ok := c[kind]
	return t, ok
}

// Expand fills the body placeholders from payload. Unknown keys expand to
// the empty string.
func (t Text) Expand(payload map[string]string) string {
	return os.Expand(t.Body, func(key string) string { return payload[key] })
}
