// SPDX-License-Identifier: Apache-2.0

package migration

import (
	"os"
	"path/filepath"
	"sort"
)

// Discover reads dir (non-recursively) and returns every valid migration
// file it contains, sorted ascending by (version, script). It fails with a
// DirectoryNotFoundError if dir does not exist, a ValidationError if any
// filename is invalid, and a Duplicate{Version,Script}Error if two files
// collide on version text or script name.
func Discover(dir string) ([]Discovered, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, DirectoryNotFoundError{Path: dir}
		}
		return nil, err
	}

	migrations := make([]Discovered, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		ext := filepath.Ext(name)
		if ext != ".sql" && ext != ".go" {
			continue
		}

		versionText, version, description, err := parseFilename(name)
		if err != nil {
			return nil, err
		}

		path := filepath.Join(dir, name)
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		kind := KindSQL
		if ext == ".go" {
			kind = KindCode
		}

		migrations = append(migrations, Discovered{
			Version:            version,
			VersionText:        versionText,
			DescriptionDisplay: displayDescription(description),
			Script:             name,
			Checksum:           Checksum(content),
			Kind:               kind,
			Source:             path,
		})
	}

	if err := validateUnique(migrations); err != nil {
		return nil, err
	}

	sort.Slice(migrations, func(i, j int) bool {
		if cmp := migrations[i].Version.Compare(migrations[j].Version); cmp != 0 {
			return cmp < 0
		}
		return migrations[i].Script < migrations[j].Script
	})

	return migrations, nil
}

func validateUnique(migrations []Discovered) error {
	versions := make(map[string]struct{}, len(migrations))
	scripts := make(map[string]struct{}, len(migrations))

	for _, m := range migrations {
		if _, ok := versions[m.VersionText]; ok {
			return DuplicateVersionError{VersionText: m.VersionText}
		}
		versions[m.VersionText] = struct{}{}

		if _, ok := scripts[m.Script]; ok {
			return DuplicateScriptError{Script: m.Script}
		}
		scripts[m.Script] = struct{}{}
	}

	return nil
}
