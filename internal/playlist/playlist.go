// Package playlist resolves the upload worker's ordered, case-insensitive
// regex-to-identifier mapping table.
package playlist

import (
	"fmt"
	"regexp"
)

// Mapping is one row of the ordered regex -> env-var-name table. The
// identifier actually contributed to a meeting's playlist list comes from
// configured[Name], not from this struct, so an unset PLAYLIST_<NAME>
// silently drops the row: only mappings with a non-empty configured
// identifier contribute.
type Mapping struct {
	Pattern *regexp.Regexp
	Name    string // e.g. "CITY_COMMISSION", matched against PLAYLIST_<NAME>
}

// Compile builds the ordered mapping table from (pattern, name) pairs,
// each pattern compiled case-insensitively.
func Compile(rows [][2]string) ([]Mapping, error) {
	out := make([]Mapping, 0, len(rows))
	for _, row := range rows {
		pattern, name := row[0], row[1]
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("compile playlist pattern %q: %w", pattern, err)
		}
		out = append(out, Mapping{Pattern: re, Name: name})
	}
	return out, nil
}

// DefaultRows is the ordered (pattern, name) table cmd/worker-upload
// compiles at startup. Municipal agenda titles follow a handful of
// recurring board/committee names; new boards are added here, not by
// changing Resolve.
var DefaultRows = [][2]string{
	{`^City Commission`, "CITY_COMMISSION"},
	{`^General Policy Committee`, "GENERAL_POLICY_COMMITTEE"},
	{`^Planning (and Zoning )?Board`, "PLANNING_BOARD"},
	{`^Code Enforcement Board`, "CODE_ENFORCEMENT_BOARD"},
	{`^Historic Preservation Board`, "HISTORIC_PRESERVATION_BOARD"},
	{`^Budget (Advisory )?Committee`, "BUDGET_COMMITTEE"},
}

// Resolve matches title against each mapping in order, returning the
// configured identifiers (from env, keyed by Mapping.Name) for every
// mapping that both matches and has a non-empty configured value.
func Resolve(title string, mappings []Mapping, configured map[string]string) []string {
	var out []string
	for _, m := range mappings {
		if !m.Pattern.MatchString(title) {
			continue
		}
		id, ok := configured[m.Name]
		if !ok || id == "" {
			continue
		}
		out = append(out, id)
	}
	return out
}
