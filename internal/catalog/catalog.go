package catalog

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

//go:embed objects.yaml
var defaultFiles embed.FS

var ErrEmptyCatalog = errors.New("catalog has no targets")

// Catalog is the fixed, ordered list of drawable targets.
// It is immutable after loading and safe for concurrent use.
type Catalog struct {
	targets    []string
	categories map[string]string // target -> category
	index      map[string]struct{}
}

// Default loads the embedded target list.
func Default() (*Catalog, error) {
	raw, err := fs.ReadFile(defaultFiles, "objects.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded catalog: %w", err)
	}
	return Parse(raw)
}

// Load returns the embedded catalog, or the file at path when one is given.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse reads a YAML document of category -> list of targets, keeping
// document order. A bare top-level list is accepted as a single category.
func Parse(raw []byte) (*Catalog, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	c := &Catalog{categories: make(map[string]string), index: make(map[string]struct{})}
	if len(doc.Content) == 0 {
		return nil, ErrEmptyCatalog
	}
	root := doc.Content[0]
	switch root.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(root.Content); i += 2 {
			category := strings.TrimSpace(root.Content[i].Value)
			if err := c.addList(category, root.Content[i+1]); err != nil {
				return nil, err
			}
		}
	case yaml.SequenceNode:
		if err := c.addList("", root); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("parse catalog: unexpected yaml node kind %d", root.Kind)
	}
	if len(c.targets) == 0 {
		return nil, ErrEmptyCatalog
	}
	return c, nil
}

func (c *Catalog) addList(category string, node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		return fmt.Errorf("parse catalog: category %q is not a list", category)
	}
	for _, item := range node.Content {
		name := strings.ToLower(strings.TrimSpace(item.Value))
		if name == "" {
			continue
		}
		if _, dup := c.index[name]; dup {
			continue
		}
		c.index[name] = struct{}{}
		c.categories[name] = category
		c.targets = append(c.targets, name)
	}
	return nil
}

// Targets returns a copy of the targets in catalog order.
func (c *Catalog) Targets() []string { return append([]string(nil), c.targets...) }

func (c *Catalog) Len() int { return len(c.targets) }

// At returns the i-th target.
func (c *Catalog) At(i int) string { return c.targets[i] }

// Contains reports whether name (normalized) is a catalog target.
func (c *Catalog) Contains(name string) bool {
	_, ok := c.index[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Category returns the group a target was listed under.
func (c *Catalog) Category(name string) string {
	return c.categories[strings.ToLower(strings.TrimSpace(name))]
}
