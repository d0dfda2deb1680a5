package input

import (
	"net/url"
	"regexp"
	"strings"
)

const (
	sniffSample    = 25
	sniffMinShare  = 0.6
	stateMinShare  = 0.8
	nameMinLetters = 0.7
)

var (
	domainRe   = regexp.MustCompile(`(?i)^[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?(?:\.[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?)*\.[a-z]{2,24}$`)
	cityStRe   = regexp.MustCompile(`^([^,]+),\s*([A-Za-z]{2}|[A-Za-z][A-Za-z ]+?)(?:\s+\d{5}(?:-\d{4})?)?$`)
	hasLetters = regexp.MustCompile(`[A-Za-z]`)
)

// sniffColumns assigns roles to unassigned columns whose values have a
// recognizable shape. A header-mapped column is never reassigned.
func sniffColumns(s *Schema, rows [][]string) {
	if len(rows) == 0 {
		return
	}
	for i := range s.Headers {
		if s.assigned(i) {
			continue
		}
		vals := sample(rows, i)
		if len(vals) == 0 {
			continue
		}
		switch {
		case missing(s, RoleDomain) && share(vals, func(v string) bool { return NormalizeDomain(v) != "" }) >= sniffMinShare:
			s.Columns[RoleDomain] = i
		case missing(s, RoleState) && missing(s, RoleLocation) && share(vals, isStateCode) >= stateMinShare:
			s.Columns[RoleState] = i
		case missing(s, RoleLocation) && missing(s, RoleCity) && share(vals, looksLikeCityState) >= sniffMinShare:
			s.Columns[RoleLocation] = i
		default:
			continue
		}
		s.Sniffed = append(s.Sniffed, roleAt(s, i))
	}

	// Last resort for a name column: the first remaining column that is
	// mostly free text.
	if missing(s, RoleName) {
		for i := range s.Headers {
			if s.assigned(i) || hasAnyFragment(normalizeHeader(s.Headers[i]), personNameHeaders) {
				continue
			}
			vals := sample(rows, i)
			if len(vals) > 0 && share(vals, looksLikeCompanyName) >= nameMinLetters {
				s.Columns[RoleName] = i
				s.Sniffed = append(s.Sniffed, RoleName)
				break
			}
		}
	}
}

func missing(s *Schema, r Role) bool {
	_, ok := s.Columns[r]
	return !ok
}

func roleAt(s *Schema, col int) Role {
	for r, i := range s.Columns {
		if i == col {
			return r
		}
	}
	return ""
}

func sample(rows [][]string, col int) []string {
	var out []string
	for _, row := range rows {
		if col >= len(row) {
			continue
		}
		if v := strings.TrimSpace(row[col]); v != "" {
			out = append(out, v)
			if len(out) == sniffSample {
				break
			}
		}
	}
	return out
}

func share(vals []string, pred func(string) bool) float64 {
	n := 0
	for _, v := range vals {
		if pred(v) {
			n++
		}
	}
	return float64(n) / float64(len(vals))
}

// NormalizeDomain reduces a URL or bare host to a lowercase registrable
// host without scheme, "www.", port, or path. It returns "" when the value
// is not a plausible domain.
func NormalizeDomain(raw string) string {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" || strings.ContainsAny(v, " @") {
		return ""
	}
	if !strings.Contains(v, "://") {
		v = "http://" + v
	}
	u, err := url.Parse(v)
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	host = strings.TrimSuffix(host, ".")
	if !domainRe.MatchString(host) {
		return ""
	}
	return host
}

func isStateCode(v string) bool {
	_, ok := stateCodes[strings.ToUpper(strings.TrimSpace(v))]
	return ok
}

func looksLikeCityState(v string) bool {
	m := cityStRe.FindStringSubmatch(strings.TrimSpace(v))
	if m == nil {
		return false
	}
	return NormalizeState(m[2]) != ""
}

func looksLikeCompanyName(v string) bool {
	return hasLetters.MatchString(v) && NormalizeDomain(v) == "" && !strings.Contains(v, "@")
}

// SplitLocation splits "City, ST" (optionally followed by a ZIP) into its
// parts. A value without a recognizable state is returned as the city.
func SplitLocation(v string) (city, state string) {
	v = strings.TrimSpace(v)
	if m := cityStRe.FindStringSubmatch(v); m != nil {
		if st := NormalizeState(m[2]); st != "" {
			return strings.TrimSpace(m[1]), st
		}
	}
	if st := NormalizeState(v); st != "" {
		return "", st
	}
	return v, ""
}

// NormalizeState returns the two-letter USPS code for a state code or full
// state name, or "" when unrecognized.
func NormalizeState(v string) string {
	v = strings.ToUpper(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), ".")))
	if _, ok := stateCodes[v]; ok {
		return v
	}
	if code, ok := stateNames[v]; ok {
		return code
	}
	return ""
}

var stateNames = map[string]string{
	"ALABAMA": "AL", "ALASKA": "AK", "ARIZONA": "AZ", "ARKANSAS": "AR", "CALIFORNIA": "CA",
	"COLORADO": "CO", "CONNECTICUT": "CT", "DELAWARE": "DE", "DISTRICT OF COLUMBIA": "DC",
	"FLORIDA": "FL", "GEORGIA": "GA", "HAWAII": "HI", "IDAHO": "ID", "ILLINOIS": "IL",
	"INDIANA": "IN", "IOWA": "IA", "KANSAS": "KS", "KENTUCKY": "KY", "LOUISIANA": "LA",
	"MAINE": "ME", "MARYLAND": "MD", "MASSACHUSETTS": "MA", "MICHIGAN": "MI", "MINNESOTA": "MN",
	"MISSISSIPPI": "MS", "MISSOURI": "MO", "MONTANA": "MT", "NEBRASKA": "NE", "NEVADA": "NV",
	"NEW HAMPSHIRE": "NH", "NEW JERSEY": "NJ", "NEW MEXICO": "NM", "NEW YORK": "NY",
	"NORTH CAROLINA": "NC", "NORTH DAKOTA": "ND", "OHIO": "OH", "OKLAHOMA": "OK", "OREGON": "OR",
	"PENNSYLVANIA": "PA", "RHODE ISLAND": "RI", "SOUTH CAROLINA": "SC", "SOUTH DAKOTA": "SD",
	"TENNESSEE": "TN", "TEXAS": "TX", "UTAH": "UT", "VERMONT": "VT", "VIRGINIA": "VA",
	"WASHINGTON": "WA", "WEST VIRGINIA": "WV", "WISCONSIN": "WI", "WYOMING": "WY",
	"PUERTO RICO": "PR",
}

var stateCodes = func() map[string]struct{} {
	m := make(map[string]struct{}, len(stateNames))
	for _, code := range stateNames {
		m[code] = struct{}{}
	}
	return m
}()
