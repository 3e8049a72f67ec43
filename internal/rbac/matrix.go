package rbac

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/depotline/depot/internal/shared"
)

//go:embed matrix.yaml
var defaultMatrix []byte

// Matrix is the static role to permission table consulted by the frontend
// for UI visibility and by the API when a role has no database assignments.
type Matrix struct {
	roles map[string]RoleDefinition
}

type matrixFile struct {
	Roles map[string]RoleDefinition `yaml:"roles"`
}

// DefaultMatrix parses the embedded table.
func DefaultMatrix() (Matrix, error) {
	return ParseMatrix(defaultMatrix)
}

// ParseMatrix decodes a YAML table and rejects unknown permissions.
func ParseMatrix(raw []byte) (Matrix, error) {
	var file matrixFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return Matrix{}, fmt.Errorf("rbac: parse matrix: %w", err)
	}
	known := make(map[string]struct{})
	for _, p := range shared.AllScopes() {
		known[p] = struct{}{}
	}
	known[shared.PermissionAll] = struct{}{}

	roles := make(map[string]RoleDefinition, len(file.Roles))
	for name, def := range file.Roles {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			return Matrix{}, fmt.Errorf("rbac: matrix role without name")
		}
		def.Name = name
		def.Permissions = normalizePermissions(def.Permissions)
		for _, p := range def.Permissions {
			if _, ok := known[p]; !ok {
				return Matrix{}, fmt.Errorf("rbac: role %s references unknown permission %q", name, p)
			}
		}
		roles[name] = def
	}
	return Matrix{roles: roles}, nil
}

// Permissions returns the permissions the table grants role.
func (m Matrix) Permissions(role string) ([]string, bool) {
	def, ok := m.roles[strings.ToLower(role)]
	if !ok {
		return nil, false
	}
	out := make([]string, len(def.Permissions))
	copy(out, def.Permissions)
	return out, true
}

// Roles returns every role definition ordered by name.
func (m Matrix) Roles() []RoleDefinition {
	out := make([]RoleDefinition, 0, len(m.roles))
	for _, def := range m.roles {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RoleNames returns the role names in the table.
func (m Matrix) RoleNames() []string {
	names := make([]string, 0, len(m.roles))
	for name := range m.roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		unique[p] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for p := range unique {
		normalized = append(normalized, p)
	}
	sort.Strings(normalized)
	return normalized
}

func hasPermission(granted []string, perm string) bool {
	for _, g := range granted {
		if g == shared.PermissionAll || strings.EqualFold(g, perm) {
			return true
		}
	}
	return false
}

func hasAnyPermission(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	for _, r := range required {
		if hasPermission(granted, r) {
			return true
		}
	}
	return false
}

func hasAllPermissions(granted []string, required []string) bool {
	for _, r := range required {
		if !hasPermission(granted, r) {
			return false
		}
	}
	return true
}
