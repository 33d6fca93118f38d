// Package catalog describes the external tools go-toolrun knows how to run.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/randomizedcoder/go-toolrun/internal/process"
)

//go:embed default.toml
var defaultCatalog []byte

// ErrUnknownTool is returned by Lookup for a name not in the catalog.
var ErrUnknownTool = errors.New("unknown tool")

// Tool is one runnable entry.
type Tool struct {
	Name         string   `toml:"name" yaml:"name"`
	Title        string   `toml:"title" yaml:"title"`
	Description  string   `toml:"description" yaml:"description"`
	Program      string   `toml:"program" yaml:"program"`
	Args         []string `toml:"args" yaml:"args"`
	Elevated     bool     `toml:"elevated" yaml:"elevated"`
	Blocking     bool     `toml:"blocking" yaml:"blocking"` // run to completion, no streaming
	Dependencies []string `toml:"dependencies" yaml:"dependencies"`
}

// Command builds the command for this tool with extra user arguments
// appended after the fixed ones.
func (t Tool) Command(extra []string) process.Command {
	args := make([]string, 0, len(t.Args)+len(extra))
	args = append(args, t.Args...)
	args = append(args, extra...)
	if t.Elevated {
		return process.NewElevatedCommand(t.Program, args...)
	}
	return process.NewCommand(t.Program, args...)
}

// Catalog is a validated set of tools keyed by name.
type Catalog struct {
	tools map[string]Tool
}

type document struct {
	Tools []Tool `toml:"tool" yaml:"tools"`
}

// Default returns the built-in catalog.
func Default() (*Catalog, error) {
	var doc document
	if _, err := toml.NewDecoder(bytes.NewReader(defaultCatalog)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode built-in catalog: %w", err)
	}
	return build(doc.Tools)
}

// Load reads a catalog file. The format follows the extension:
// .toml, or .yaml/.yml.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var doc document
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.Decode(string(data), &doc); err != nil {
			return nil, fmt.Errorf("decode catalog %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode catalog %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("catalog %s: unsupported extension %q", path, ext)
	}
	return build(doc.Tools)
}

// LoadOrDefault loads path, or the built-in catalog when path is empty.
func LoadOrDefault(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	return Load(path)
}

func build(tools []Tool) (*Catalog, error) {
	c := &Catalog{tools: make(map[string]Tool, len(tools))}
	for i, t := range tools {
		if t.Name == "" {
			return nil, fmt.Errorf("tool %d: name is required", i)
		}
		if t.Program == "" {
			return nil, fmt.Errorf("tool %s: program is required", t.Name)
		}
		if _, dup := c.tools[t.Name]; dup {
			return nil, fmt.Errorf("tool %s: defined twice", t.Name)
		}
		if len(t.Dependencies) == 0 {
			t.Dependencies = []string{t.Program}
		}
		c.tools[t.Name] = t
	}
	return c, nil
}

// Lookup returns the tool with the given name.
func (c *Catalog) Lookup(name string) (Tool, error) {
	t, ok := c.tools[name]
	if !ok {
		return Tool{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return t, nil
}

// Tools returns every tool sorted by name.
func (c *Catalog) Tools() []Tool {
	out := make([]Tool, 0, len(c.tools))
	for _, t := range c.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of tools.
func (c *Catalog) Len() int {
	return len(c.tools)
}
