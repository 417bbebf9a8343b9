// Package makedeps lists the YAML files a device patch file pulls in
// through `_include`, in the form of a Make dependency rule.
package makedeps

import (
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"svdtools/internal/safeio"
)

const includeKey = "_include"

// Resolver reads patch files through a root-confined file system.
type Resolver struct {
	fsys *safeio.FS
}

func New(fsys *safeio.FS) *Resolver {
	return &Resolver{fsys: fsys}
}

// Includes returns the absolute paths of every file reachable from yamlPath
// through `_include` lists, depth first in discovery order, each once.
// yamlPath is resolved like any other read of the file system, so a relative
// path starts at its root. Include paths are relative to the file that names
// them. Lists nested one level down, under peripheral keys (keys not
// starting with "_"), are followed too.
func (r *Resolver) Includes(yamlPath string) ([]string, error) {
	top, err := r.fsys.Resolve(yamlPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", yamlPath, err)
	}
	doc, err := r.load(top)
	if err != nil {
		return nil, err
	}
	w := &walker{r: r, seen: map[string]bool{top: true}}
	if err := w.document(top, doc); err != nil {
		return nil, err
	}
	return w.deps, nil
}

// WriteFile resolves yamlPath and writes the rule to depsFile.
func (r *Resolver) WriteFile(yamlPath, depsFile string) error {
	deps, err := r.Includes(yamlPath)
	if err != nil {
		return err
	}
	f, err := os.Create(depsFile)
	if err != nil {
		return fmt.Errorf("create deps file: %w", err)
	}
	if err := Write(f, depsFile, deps); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Write emits "{target}: {dep} {dep}...\n".
func Write(w io.Writer, target string, deps []string) error {
	_, err := fmt.Fprintf(w, "%s: %s\n", target, strings.Join(deps, " "))
	return err
}

type walker struct {
	r    *Resolver
	seen map[string]bool
	deps []string
}

func (w *walker) document(path string, doc *yaml.Node) error {
	for key, val := range pairs(doc) {
		if strings.HasPrefix(key, "_") || val.Kind != yaml.MappingNode {
			continue
		}
		if err := w.includes(path, val); err != nil {
			return err
		}
	}
	return w.includes(path, doc)
}

func (w *walker) includes(path string, node *yaml.Node) error {
	rels, err := includeList(lookup(node, includeKey))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	for _, rel := range rels {
		child := rel
		if !filepath.IsAbs(child) {
			child = filepath.Join(filepath.Dir(path), filepath.FromSlash(rel))
		}
		child = filepath.Clean(child)
		if w.seen[child] {
			continue
		}
		w.seen[child] = true
		w.deps = append(w.deps, child)

		doc, err := w.r.load(child)
		if err != nil {
			return fmt.Errorf("included from %s: %w", path, err)
		}
		if err := w.document(child, doc); err != nil {
			return err
		}
	}
	return nil
}

// load returns the top-level mapping of path, or nil for an empty file.
func (r *Resolver) load(path string) (*yaml.Node, error) {
	raw, err := r.fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	top := deref(doc.Content[0])
	if top.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse %s: top level must be a mapping", path)
	}
	return top, nil
}

// pairs yields the key/value pairs of a mapping node in document order.
func pairs(n *yaml.Node) iter.Seq2[string, *yaml.Node] {
	return func(yield func(string, *yaml.Node) bool) {
		if n == nil || n.Kind != yaml.MappingNode {
			return
		}
		for i := 0; i+1 < len(n.Content); i += 2 {
			if !yield(n.Content[i].Value, deref(n.Content[i+1])) {
				return
			}
		}
	}
}

func lookup(n *yaml.Node, key string) *yaml.Node {
	for k, v := range pairs(n) {
		if k == key {
			return v
		}
	}
	return nil
}

func deref(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

func includeList(n *yaml.Node) ([]string, error) {
	if n == nil {
		return nil, nil
	}
	switch n.Kind {
	case yaml.ScalarNode:
		if n.ShortTag() == "!!null" {
			return nil, nil
		}
		return []string{n.Value}, nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(n.Content))
		for _, item := range n.Content {
			item = deref(item)
			if item.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: %s entries must be paths", item.Line, includeKey)
			}
			out = append(out, item.Value)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("line %d: %s must be a list of paths", n.Line, includeKey)
	}
}
