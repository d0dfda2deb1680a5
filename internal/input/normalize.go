package input

import (
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/contact-cli/internal/model"
)

// Normalize infers the schema of a table and converts every row, in order,
// into a CompanyRecord. Columns without a role are kept in Extra under their
// original header.
func Normalize(header []string, rows [][]string) ([]model.CompanyRecord, error) {
	s, err := Infer(header, rows)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("input: inferred schema",
		zap.Any("columns", s.Columns),
		zap.Any("sniffed", s.Sniffed),
		zap.Int("rows", len(rows)),
	)

	out := make([]model.CompanyRecord, 0, len(rows))
	for i, row := range rows {
		out = append(out, s.Record(i+1, row))
	}
	return out, nil
}

// Record converts one data row. rowNum is the 1-based position among data
// rows.
func (s Schema) Record(rowNum int, row []string) model.CompanyRecord {
	cell := func(r Role) string {
		i := s.Column(r)
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	rec := model.CompanyRecord{
		Row:      rowNum,
		Name:     collapseSpaces(cell(RoleName)),
		Domain:   NormalizeDomain(cell(RoleDomain)),
		City:     tidyCity(cell(RoleCity)),
		State:    NormalizeState(cell(RoleState)),
		Industry: collapseSpaces(cell(RoleIndustry)),
	}
	if loc := cell(RoleLocation); loc != "" {
		city, state := SplitLocation(loc)
		if rec.City == "" {
			rec.City = tidyCity(city)
		}
		if rec.State == "" {
			rec.State = state
		}
	}
	if rec.Name == "" && rec.Domain != "" {
		rec.Name = rec.Domain
	}

	for i, h := range s.Headers {
		if s.assigned(i) || i >= len(row) {
			continue
		}
		v := strings.TrimSpace(row[i])
		if v == "" || strings.TrimSpace(h) == "" {
			continue
		}
		if rec.Extra == nil {
			rec.Extra = make(map[string]string)
		}
		rec.Extra[strings.TrimSpace(h)] = v
	}
	return rec
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var titleCaser = cases.Title(language.English)

// tidyCity title-cases a city written entirely in upper or lower case and
// leaves mixed-case values alone.
func tidyCity(s string) string {
	s = collapseSpaces(s)
	if s == "" {
		return ""
	}
	hasUpper, hasLower := false, false
	for _, r := range s {
		if unicode.IsUpper(r) {
			hasUpper = true
		}
		if unicode.IsLower(r) {
			hasLower = true
		}
	}
	if hasUpper && hasLower {
		return s
	}
	return titleCaser.String(s)
}
