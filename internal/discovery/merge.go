package discovery

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/contact-cli/internal/model"
	"github.com/sells-group/contact-cli/internal/provider"
)

// nameSuffixes are dropped before comparing names.
var nameSuffixes = map[string]bool{
	"jr": true, "sr": true, "ii": true, "iii": true, "iv": true,
	"md": true, "phd": true, "dds": true, "esq": true, "cpa": true,
	"mr": true, "mrs": true, "ms": true, "dr": true,
}

// NameTokens folds diacritics, lowercases, and splits a person name into
// comparable tokens. Initials, honorifics, and suffixes are dropped.
func NameTokens(name string) []string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	folded = strings.ToLower(folded)

	var out []string
	for _, w := range strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	}) {
		w = strings.Trim(w, "'")
		if len(w) < 2 || nameSuffixes[w] {
			continue
		}
		out = append(out, w)
	}
	return out
}

// Jaccard returns |a ∩ b| / |a ∪ b| over token sets.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]int, len(a)+len(b))
	for _, t := range a {
		set[t] |= 1
	}
	for _, t := range b {
		set[t] |= 2
	}
	inter := 0
	for _, v := range set {
		if v == 3 {
			inter++
		}
	}
	return float64(inter) / float64(len(set))
}

// PhonePrefix returns the area code and exchange of a normalized number,
// or "" when there are fewer than six national digits.
func PhonePrefix(phone string) string {
	d := strings.TrimPrefix(phone, "+")
	if len(d) == 11 && d[0] == '1' {
		d = d[1:]
	}
	if len(d) < 6 {
		return ""
	}
	return d[:6]
}

// contactDomain is the domain a candidate is tied to: its email domain, or
// the company domain it was discovered for.
func contactDomain(c model.CandidateContact, companyDomain string) string {
	if d := provider.EmailDomain(c.Email); d != "" {
		return d
	}
	return strings.ToLower(companyDomain)
}

// SameIdentity reports whether a and b describe the same person. An exact
// email or profile URL match is always the same person. Otherwise names
// must overlap by at least threshold and the two must share a domain, a
// phone prefix, or a profile URL.
func SameIdentity(a, b model.CandidateContact, companyDomain string, threshold float64) bool {
	if a.Email != "" && a.Email == b.Email {
		return true
	}
	if a.ProfileURL != "" && strings.EqualFold(a.ProfileURL, b.ProfileURL) {
		return true
	}
	if a.Name == "" || b.Name == "" {
		return false
	}
	if Jaccard(NameTokens(a.Name), NameTokens(b.Name)) < threshold {
		return false
	}

	if da, db := contactDomain(a, companyDomain), contactDomain(b, companyDomain); da != "" && da == db {
		return true
	}
	if pa, pb := PhonePrefix(a.Phone), PhonePrefix(b.Phone); pa != "" && pa == pb {
		return true
	}
	return false
}

// sharesDetail reports whether a nameless candidate carries the same email
// or phone as c.
func sharesDetail(nameless, c model.CandidateContact) bool {
	return (nameless.Email != "" && nameless.Email == c.Email) ||
		(nameless.Phone != "" && nameless.Phone == c.Phone)
}

type identity struct {
	members []model.CandidateContact
	order   []int
	first   int
}

func (id *identity) add(c model.CandidateContact, idx int) {
	id.members = append(id.members, c)
	id.order = append(id.order, idx)
	if idx < id.first {
		id.first = idx
	}
}

func (id *identity) matches(c model.CandidateContact, companyDomain string, threshold float64) bool {
	for _, m := range id.members {
		if SameIdentity(m, c, companyDomain, threshold) {
			return true
		}
	}
	return false
}

func (id *identity) matchesDetail(c model.CandidateContact) bool {
	for _, m := range id.members {
		if sharesDetail(c, m) {
			return true
		}
	}
	return false
}

// merged combines members into one candidate. Provenance is concatenated
// in discovery order; each field comes from the most reliable member that
// has it, earlier discovery winning ties.
func (id *identity) merged() model.CandidateContact {
	idx := make([]int, len(id.members))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return id.order[idx[i]] < id.order[idx[j]] })

	out := id.members[idx[0]]
	for _, i := range idx[1:] {
		out = out.Absorb(id.members[i])
	}

	for _, f := range model.AllFields {
		best, bestPri, found := "", 0, false
		for _, i := range idx {
			m := id.members[i]
			v := m.Get(f)
			if v == "" {
				continue
			}
			if p := m.BestPriority(); !found || p < bestPri {
				best, bestPri, found = v, p, true
			}
		}
		if found && out.Get(f) != best {
			out = out.Set(f, best)
		}
	}
	return out
}

// Merge groups candidates into distinct identities and returns one merged
// candidate per identity, ranked by distinct provider count, then best
// source priority, then discovery order. Input order is discovery order.
// The result depends only on the input sequence.
func Merge(cands []model.CandidateContact, companyDomain string, threshold float64) []model.CandidateContact {
	var ids []*identity

	// Named candidates form identities first so a nameless detail can join
	// a person regardless of which provider answered first.
	for i, c := range cands {
		if c.Name == "" {
			continue
		}
		placed := false
		for _, id := range ids {
			if id.matches(c, companyDomain, threshold) {
				id.add(c, i)
				placed = true
				break
			}
		}
		if !placed {
			id := &identity{first: i}
			id.add(c, i)
			ids = append(ids, id)
		}
	}
	for i, c := range cands {
		if c.Name != "" {
			continue
		}
		placed := false
		for _, id := range ids {
			if id.matches(c, companyDomain, threshold) || id.matchesDetail(c) {
				id.add(c, i)
				placed = true
				break
			}
		}
		if !placed {
			id := &identity{first: i}
			id.add(c, i)
			ids = append(ids, id)
		}
	}

	sort.SliceStable(ids, func(i, j int) bool { return ids[i].first < ids[j].first })

	out := make([]model.CandidateContact, len(ids))
	for i, id := range ids {
		out[i] = id.merged()
	}
	Rank(out)
	return out
}

// Rank sorts candidates by signal strength: distinct providers descending,
// then best source priority ascending. The sort is stable so discovery
// order breaks remaining ties.
func Rank(cands []model.CandidateContact) {
	sort.SliceStable(cands, func(i, j int) bool {
		pi, pj := len(cands[i].Providers()), len(cands[j].Providers())
		if pi != pj {
			return pi > pj
		}
		return cands[i].BestPriority() < cands[j].BestPriority()
	})
}
