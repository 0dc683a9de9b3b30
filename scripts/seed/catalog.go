package main

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/parokia/parokia/internal/rbac"
	"github.com/parokia/parokia/internal/shared"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type catalogPermission struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type catalogRole struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

type catalog struct {
	Permissions []catalogPermission `yaml:"permissions"`
	Roles       []catalogRole       `yaml:"roles"`
}

// parseCatalog decodes and checks a role catalog. A role listing "*" is
// expanded to every permission in the catalog.
func parseCatalog(data []byte) (catalog, error) {
	var c catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return catalog{}, fmt.Errorf("decode catalog: %w", err)
	}

	known := make(map[string]bool, len(c.Permissions))
	all := make([]string, 0, len(c.Permissions))
	for i, p := range c.Permissions {
		name := rbac.NormalizeName(p.Name)
		if name == "" {
			return catalog{}, fmt.Errorf("permission %d has no name", i)
		}
		if known[name] {
			return catalog{}, fmt.Errorf("permission %q declared twice", name)
		}
		known[name] = true
		c.Permissions[i].Name = name
		all = append(all, name)
	}
	for _, scope := range shared.AllScopes() {
		if !known[scope] {
			return catalog{}, fmt.Errorf("permission %q used by routes is missing from catalog", scope)
		}
	}

	seenRoles := map[string]bool{}
	for i, r := range c.Roles {
		name := rbac.NormalizeName(r.Name)
		if name == "" {
			return catalog{}, fmt.Errorf("role %d has no name", i)
		}
		if seenRoles[name] {
			return catalog{}, fmt.Errorf("role %q declared twice", name)
		}
		seenRoles[name] = true
		c.Roles[i].Name = name

		var perms []string
		for _, p := range r.Permissions {
			p = rbac.NormalizeName(p)
			if p == "*" {
				perms = append(perms, all...)
				continue
			}
			if !known[p] {
				return catalog{}, fmt.Errorf("role %q references unknown permission %q", name, p)
			}
			perms = append(perms, p)
		}
		c.Roles[i].Permissions = dedupe(perms)
	}
	if !seenRoles[rbac.SuperAdminRole] {
		return catalog{}, fmt.Errorf("catalog must declare the %s role", rbac.SuperAdminRole)
	}
	return c, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (c catalog) role(name string) (catalogRole, bool) {
	name = strings.ToLower(name)
	for _, r := range c.Roles {
		if r.Name == name {
			return r, true
		}
	}
	return catalogRole{}, false
}
