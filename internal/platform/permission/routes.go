package permission

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed routes.yaml
var defaultRoutesYAML []byte

// Requirement is what a screen demands of the current user.
type Requirement struct {
	Path                string         `yaml:"path" json:"path"`
	RequiredPermissions []ResourceType `yaml:"requiredPermissions" json:"requiredPermissions"`
	RequiredRoles       []Role         `yaml:"requiredRoles,omitempty" json:"requiredRoles,omitempty"`
	RequiredDepartments []Department   `yaml:"requiredDepartments,omitempty" json:"requiredDepartments,omitempty"`
}

// RouteTable is the static path -> requirement map. It is built once at
// startup and never mutated afterwards.
type RouteTable struct {
	byPath map[string]Requirement
	paths  []string // longest first
}

type routesFile struct {
	Routes []Requirement `yaml:"routes"`
}

// LoadRoutes parses a YAML route table.
func LoadRoutes(r io.Reader) (*RouteTable, error) {
	var f routesFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode route table: %w", err)
	}
	return NewRouteTable(f.Routes)
}

// DefaultRoutes returns the embedded hospital route table.
func DefaultRoutes() (*RouteTable, error) {
	return LoadRoutes(bytes.NewReader(defaultRoutesYAML))
}

// NewRouteTable validates and indexes a list of requirements.
func NewRouteTable(reqs []Requirement) (*RouteTable, error) {
	t := &RouteTable{byPath: make(map[string]Requirement, len(reqs))}
	for _, req := range reqs {
		if !strings.HasPrefix(req.Path, "/") {
			return nil, fmt.Errorf("route %q must start with /", req.Path)
		}
		req.Path = normalizePath(req.Path)
		if _, dup := t.byPath[req.Path]; dup {
			return nil, fmt.Errorf("duplicate route %q", req.Path)
		}
		for _, rt := range req.RequiredPermissions {
			if !rt.IsKnown() {
				return nil, fmt.Errorf("route %q: unknown resource type %q", req.Path, rt)
			}
		}
		t.byPath[req.Path] = req
		t.paths = append(t.paths, req.Path)
	}
	sort.Slice(t.paths, func(i, j int) bool {
		return len(t.paths[i]) > len(t.paths[j])
	})
	return t, nil
}

// Lookup returns the requirement of the longest registered prefix of path.
func (t *RouteTable) Lookup(path string) (Requirement, bool) {
	path = normalizePath(path)
	for _, p := range t.paths {
		if hasPathPrefix(path, p) {
			return t.byPath[p], true
		}
	}
	return Requirement{}, false
}

// Paths returns every registered path, longest first.
func (t *RouteTable) Paths() []string {
	out := make([]string, len(t.paths))
	copy(out, t.paths)
	return out
}

func normalizePath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	if p == "" {
		return "/"
	}
	return p
}

// hasPathPrefix reports whether prefix matches path on a segment boundary.
// The root only matches itself, so unlisted screens never inherit from it.
func hasPathPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	if prefix == "/" {
		return false
	}
	return strings.HasPrefix(path, prefix+"/")
}
