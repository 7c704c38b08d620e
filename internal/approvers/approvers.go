// Package approvers loads the business-group approver registry.
//
// Groups and their registered approvers live in .brm/approvers.toml so
// operators can edit them without touching the database. brm init seeds the
// group tables from this file, and the daemon re-reads it when it changes.
package approvers

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/brmkit/brm/internal/types"
)

// FileName is the registry file name under the .brm directory.
const FileName = "approvers.toml"

// Entry is one group definition as written in approvers.toml.
type Entry struct {
	Description string   `toml:"description"`
	Email       string   `toml:"email"`
	Approvers   []string `toml:"approvers"`
}

type registryFile struct {
	Groups map[string]Entry `toml:"groups"`
}

// Path returns the registry location for a .brm directory.
func Path(brmDir string) string {
	return filepath.Join(brmDir, FileName)
}

// Load reads the registry. A missing file is not an error: it yields empty
// results and callers fall back to whatever the database already holds.
func Load(brmDir string) ([]types.Group, map[string][]string, error) {
	data, err := os.ReadFile(Path(brmDir))
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", FileName, err)
	}

	var reg registryFile
	if err := toml.Unmarshal(data, &reg); err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", FileName, err)
	}

	names := make([]string, 0, len(reg.Groups))
	for name := range reg.Groups {
		names = append(names, name)
	}
	sort.Strings(names)

	groups := make([]types.Group, 0, len(names))
	byGroup := make(map[string][]string, len(names))
	for _, name := range names {
		entry := reg.Groups[name]
		groups = append(groups, types.Group{
			Name:        name,
			Description: entry.Description,
			Email:       entry.Email,
		})
		if len(entry.Approvers) > 0 {
			byGroup[name] = entry.Approvers
		}
	}
	return groups, byGroup, nil
}

// starter is the registry brm init writes when none exists. The group names
// match the default approval stage layout.
const starter = `# Business groups and their registered approvers.
#
# brm init seeds the database from this file, and the brm daemon re-reads it
# whenever it changes. Users listed under a group may approve rules routed to
# that group's approval stage.

[groups.Admin]
description = "Administrators"
approvers = ["admin"]

[groups.BG1]
description = "Business group 1"
approvers = []

[groups.BG2]
description = "Business group 2"
approvers = []

[groups.BG3]
description = "Business group 3"
approvers = []
`

// WriteStarter creates a starter registry file. An existing file is left
// untouched.
func WriteStarter(brmDir string) error {
	path := Path(brmDir)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	if err := os.MkdirAll(brmDir, 0o755); err != nil {
		return fmt.Errorf("create brm dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(starter), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", FileName, err)
	}
	return nil
}
