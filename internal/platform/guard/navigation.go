package guard

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/hms/console/internal/session"
)

//go:embed menu.yaml
var defaultMenu []byte

// MenuItem is one sidebar entry. Groups have children and may have no path.
type MenuItem struct {
	Key      string     `yaml:"key" json:"key"`
	Path     string     `yaml:"path,omitempty" json:"path,omitempty"`
	Icon     string     `yaml:"icon,omitempty" json:"icon,omitempty"`
	Children []MenuItem `yaml:"children,omitempty" json:"children,omitempty"`
}

type menuFile struct {
	Items []MenuItem `yaml:"items"`
}

// LoadMenu parses a sidebar tree.
func LoadMenu(r io.Reader) ([]MenuItem, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f menuFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode menu: %w", err)
	}
	if err := validateMenu(f.Items); err != nil {
		return nil, err
	}
	return f.Items, nil
}

// DefaultMenu returns the embedded sidebar tree.
func DefaultMenu() ([]MenuItem, error) {
	return LoadMenu(bytes.NewReader(defaultMenu))
}

func validateMenu(items []MenuItem) error {
	for _, it := range items {
		if it.Key == "" {
			return fmt.Errorf("menu item without key")
		}
		if it.Path == "" && len(it.Children) == 0 {
			return fmt.Errorf("menu item %q has neither path nor children", it.Key)
		}
		if err := validateMenu(it.Children); err != nil {
			return err
		}
	}
	return nil
}

// Navigation returns the sidebar filtered for user. An anonymous user gets an
// empty menu.
func (g *Guard) Navigation(user *session.User) []MenuItem {
	if user == nil {
		return []MenuItem{}
	}
	return g.filter(user, g.menu)
}

func (g *Guard) filter(user *session.User, items []MenuItem) []MenuItem {
	out := []MenuItem{}
	subject := user.Subject()
	for _, it := range items {
		if len(it.Children) > 0 {
			children := g.filter(user, it.Children)
			if len(children) == 0 {
				continue
			}
			if it.Path != "" && !g.policy.Allow(subject, it.Path).Allowed {
				continue
			}
			it.Children = children
			out = append(out, it)
			continue
		}
		if g.policy.Allow(subject, it.Path).Allowed {
			out = append(out, it)
		}
	}
	return out
}
