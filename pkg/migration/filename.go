// SPDX-License-Identifier: Apache-2.0

package migration

import (
	"regexp"
	"strings"
)

// filenamePattern matches "V<version>__<description>.<ext>": a literal V,
// one or more digit groups separated by '.' or '_', a double underscore,
// and a lowercase/digit/underscore description.
var filenamePattern = regexp.MustCompile(`^V([0-9]+(?:[._][0-9]+)*)__([a-z0-9_]+)\.(sql|go)$`)

// parseFilename parses a migration filename into its version text, parsed
// version and description. It fails with a ValidationError for any
// grammar violation: missing "V" prefix, missing "__" separator, empty
// version or description, non-numeric version segments, or a description
// containing characters outside [a-z0-9_].
func parseFilename(name string) (versionText string, version Version, description string, err error) {
	m := filenamePattern.FindStringSubmatch(name)
	if m == nil {
		return "", Version{}, "", ValidationError{
			Reason: "invalid migration filename '" + name + "': expected V<version>__<description>.sql or .go",
		}
	}

	versionText = m[1]
	description = m[2]

	version, err = ParseVersion(versionText)
	if err != nil {
		return "", Version{}, "", err
	}

	return versionText, version, description, nil
}

func displayDescription(description string) string {
	return strings.ReplaceAll(description, "_", " ")
}
