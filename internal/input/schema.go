// Package input maps heterogeneous tabular company lists onto canonical
// company records. Column roles are inferred from header text first and from
// the shape of column values second.
package input

import (
	"fmt"
	"regexp"
	"strings"
)

// Role is the semantic meaning of an input column.
type Role string

const (
	RoleName     Role = "name"
	RoleDomain   Role = "domain"
	RoleCity     Role = "city"
	RoleState    Role = "state"
	RoleLocation Role = "location"
	RoleIndustry Role = "industry"
)

// roleOrder is the order in which header synonyms are tried. Domain comes
// before name so "Company Website" is not taken as a name column.
var roleOrder = []Role{RoleDomain, RoleName, RoleLocation, RoleCity, RoleState, RoleIndustry}

var headerSynonyms = map[Role][]string{
	RoleName: {
		"company", "company name", "business", "business name", "name", "organization",
		"organization name", "org", "org name", "account", "account name", "legal name",
		"dba", "firm", "firm name", "employer",
	},
	RoleDomain: {
		"domain", "website", "site", "url", "web", "homepage", "web site", "company domain",
		"company website", "company url", "website url",
	},
	RoleCity:     {"city", "town", "locality"},
	RoleState:    {"state", "st", "state code", "province", "region"},
	RoleLocation: {"location", "city state", "city, state", "hq", "headquarters", "address", "market"},
	RoleIndustry: {
		"industry", "vertical", "category", "sector", "segment", "naics description",
		"business type", "type",
	},
}

// Header fragments that look like a name column but describe a person.
var personNameHeaders = []string{"first name", "last name", "contact name", "owner name", "full name"}

// SchemaInferenceError is returned when no column can be read as a company
// name or domain. It is the only fatal input error.
type SchemaInferenceError struct {
	Headers []string
}

func (e *SchemaInferenceError) Error() string {
	return fmt.Sprintf("input: no company name or domain column among headers %q", e.Headers)
}

// Schema is the inferred column layout of an input table.
type Schema struct {
	Headers []string
	Columns map[Role]int
	// Sniffed lists roles that were assigned from column values rather than
	// header text.
	Sniffed []Role
}

// Column returns the index for role, or -1.
func (s Schema) Column(r Role) int {
	if i, ok := s.Columns[r]; ok {
		return i
	}
	return -1
}

func (s Schema) assigned(col int) bool {
	for _, i := range s.Columns {
		if i == col {
			return true
		}
	}
	return false
}

var nonWord = regexp.MustCompile(`[^a-z0-9,]+`)

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = nonWord.ReplaceAllString(h, " ")
	return strings.TrimSpace(h)
}

// Infer assigns column roles. Header synonyms are matched exactly, then as
// whole-word fragments; unassigned columns are then sniffed by value shape.
func Infer(header []string, rows [][]string) (Schema, error) {
	s := Schema{Headers: header, Columns: make(map[Role]int)}
	norm := make([]string, len(header))
	for i, h := range header {
		norm[i] = normalizeHeader(h)
	}

	// Exact synonym matches.
	for _, role := range roleOrder {
		for i, h := range norm {
			if s.assigned(i) {
				continue
			}
			if contains(headerSynonyms[role], h) {
				s.Columns[role] = i
				break
			}
		}
	}

	// Fragment matches, e.g. "Primary Website URL" or "Company Legal Name".
	for _, role := range roleOrder {
		if _, ok := s.Columns[role]; ok {
			continue
		}
		for i, h := range norm {
			if s.assigned(i) || h == "" {
				continue
			}
			if role == RoleName && hasAnyFragment(h, personNameHeaders) {
				continue
			}
			if hasAnyFragment(h, headerSynonyms[role]) {
				s.Columns[role] = i
				break
			}
		}
	}

	sniffColumns(&s, rows)

	_, hasName := s.Columns[RoleName]
	_, hasDomain := s.Columns[RoleDomain]
	if !hasName && !hasDomain {
		return s, &SchemaInferenceError{Headers: header}
	}
	return s, nil
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func hasAnyFragment(h string, fragments []string) bool {
	padded := " " + h + " "
	for _, f := range fragments {
		if len(f) <= 2 {
			continue
		}
		if strings.Contains(padded, " "+f+" ") {
			return true
		}
	}
	return false
}
