package provider

import (
	"regexp"
	"sort"
	"strings"
)

var (
	emailRe = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,24}\b`)
	phoneRe = regexp.MustCompile(`(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)
	// linkedInRe matches personal profile URLs only, not company pages.
	linkedInRe = regexp.MustCompile(`(?i)https?://(?:[a-z]{2,3}\.)?linkedin\.com/in/[a-z0-9\-_%]+/?`)

	nameWord  = `[A-Z][a-zA-Z'’.\-]+`
	nameExpr  = nameWord + `(?:[ \t]+(?:[A-Z]\.[ \t]+)?` + nameWord + `){1,2}`
	titleExpr = `(?i:owner|co-owner|founder|co-founder|president|vice president|ceo|coo|cfo|cto|chief [a-z]+ officer|principal|managing partner|partner|general manager|operations manager|office manager|manager|director|proprietor|vp [a-z]+|head of [a-z]+)(?:\s*(?:&|and|/)\s*(?i:owner|founder|president|ceo|principal|ceo))?`

	// Mentions never span lines.
	nameThenTitleRe = regexp.MustCompile(`(` + nameExpr + `)[ \t]*(?:,|–|—|-|\||\(|:)[ \t]*((?:[A-Za-z]+[ \t]+){0,3}?` + titleExpr + `)\b`)
	titleThenNameRe = regexp.MustCompile(`\b(` + titleExpr + `)[ \t]*(?::|-|–|—|,|is)?[ \t]+(` + nameExpr + `)`)
	// Team cards put the name and the title on consecutive lines.
	nameLineTitleRe = regexp.MustCompile(`(?m)^[ \t]*(` + nameExpr + `)[ \t]*\n[ \t]*(` + titleExpr + `)[ \t]*$`)

	scriptStyleRe = regexp.MustCompile(`(?is)<(script|style|noscript|svg)[^>]*>.*?</(?:script|style|noscript|svg)>`)
	mailtoRe      = regexp.MustCompile(`(?i)mailto:([^"'?>\s]+)`)
	telRe         = regexp.MustCompile(`(?i)tel:([+\d().\-\s]{7,20})`)
	blockTagRe    = regexp.MustCompile(`(?i)<(br|/p|/div|/li|/h[1-6]|/tr|/section)[^>]*>`)
	tagRe         = regexp.MustCompile(`<[^>]+>`)
	spaceRe       = regexp.MustCompile(`[ \t\r\f\v]+`)
	blankLinesRe  = regexp.MustCompile(`\n\s*\n+`)
)

var junkEmailLocal = []string{"noreply", "no-reply", "donotreply", "example", "sentry", "wixpress", "privacy", "abuse", "webmaster", "postmaster"}

var nonPersonWords = map[string]bool{
	"about": true, "contact": true, "our": true, "team": true, "meet": true, "the": true,
	"home": true, "services": true, "call": true, "today": true, "free": true, "estimate": true,
	"company": true, "llc": true, "inc": true, "welcome": true, "us": true, "read": true, "more": true,
	"view": true, "profile": true, "email": true, "phone": true, "office": true,
}

// Person is a name with an optional title found in free text.
type Person struct {
	Name  string
	Title string
}

// StripHTML removes scripts and tags, decodes common entities, and keeps
// block boundaries as line breaks. Mailto and tel link targets are appended
// as text so contact details inside attributes survive.
func StripHTML(html string) string {
	var links []string
	for _, m := range mailtoRe.FindAllStringSubmatch(html, -1) {
		links = append(links, m[1])
	}
	for _, m := range telRe.FindAllStringSubmatch(html, -1) {
		links = append(links, strings.TrimSpace(m[1]))
	}

	html = scriptStyleRe.ReplaceAllString(html, " ")
	html = blockTagRe.ReplaceAllString(html, "\n")
	html = tagRe.ReplaceAllString(html, " ")
	html = strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&#x27;", "'",
		"&rsquo;", "’",
		"&nbsp;", " ",
		"&#64;", "@",
	).Replace(html)
	html = spaceRe.ReplaceAllString(html, " ")
	html = blankLinesRe.ReplaceAllString(html, "\n")
	html = strings.TrimSpace(html)
	if len(links) > 0 {
		html += "\n" + strings.Join(links, "\n")
	}
	return html
}

// ExtractEmails returns distinct plausible addresses in text. Addresses on
// preferDomain come first; otherwise first-seen order is kept.
func ExtractEmails(text, preferDomain string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range emailRe.FindAllString(text, -1) {
		e := strings.ToLower(strings.Trim(m, "."))
		if seen[e] || junkEmail(e) {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	if preferDomain != "" {
		sort.SliceStable(out, func(i, j int) bool {
			return EmailDomain(out[i]) == preferDomain && EmailDomain(out[j]) != preferDomain
		})
	}
	return out
}

func junkEmail(e string) bool {
	local, domain, ok := strings.Cut(e, "@")
	if !ok {
		return true
	}
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp"} {
		if strings.HasSuffix(domain, ext) {
			return true
		}
	}
	for _, j := range junkEmailLocal {
		if strings.Contains(local, j) || strings.HasPrefix(domain, j) {
			return true
		}
	}
	return false
}

// EmailDomain returns the lowercased domain part of an address.
func EmailDomain(email string) string {
	_, d, ok := strings.Cut(strings.ToLower(strings.TrimSpace(email)), "@")
	if !ok {
		return ""
	}
	return d
}

// ExtractPhones returns distinct normalized phone numbers in text.
func ExtractPhones(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range phoneRe.FindAllString(text, -1) {
		p := NormalizePhone(m)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// ExtractProfileURL returns the first personal professional-profile URL in
// text.
func ExtractProfileURL(text string) string {
	m := linkedInRe.FindString(text)
	return strings.TrimSuffix(m, "/")
}

// NormalizePhone converts a phone number to E.164. Ten-digit numbers, and
// eleven-digit numbers starting with 1, are treated as North American.
// Anything that is not 8 to 15 digits returns "".
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	d := b.String()
	switch {
	case len(d) == 10:
		return "+1" + d
	case len(d) == 11 && d[0] == '1':
		return "+" + d
	case len(d) >= 8 && len(d) <= 15 && strings.HasPrefix(strings.TrimSpace(raw), "+"):
		return "+" + d
	}
	return ""
}

// ExtractPeople finds "Name, Title" and "Title: Name" mentions in text, and
// names followed by a title on the next line.
// Names are deduplicated case-insensitively; the first mention wins.
func ExtractPeople(text string) []Person {
	type hit struct {
		pos int
		p   Person
	}
	var hits []hit
	for _, m := range nameThenTitleRe.FindAllStringSubmatchIndex(text, -1) {
		name, title := text[m[2]:m[3]], text[m[4]:m[5]]
		hits = append(hits, hit{m[0], Person{Name: name, Title: title}})
	}
	for _, m := range nameLineTitleRe.FindAllStringSubmatchIndex(text, -1) {
		name, title := text[m[2]:m[3]], text[m[4]:m[5]]
		hits = append(hits, hit{m[0], Person{Name: name, Title: title}})
	}
	for _, m := range titleThenNameRe.FindAllStringSubmatchIndex(text, -1) {
		title, name := text[m[2]:m[3]], text[m[4]:m[5]]
		hits = append(hits, hit{m[0], Person{Name: name, Title: title}})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	seen := make(map[string]bool)
	var out []Person
	for _, h := range hits {
		name := cleanPersonName(h.p.Name)
		if name == "" || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true
		out = append(out, Person{Name: name, Title: tidyTitle(h.p.Title)})
	}
	return out
}

// cleanPersonName drops leading filler such as "Meet" and rejects names
// that contain non-person words or possessives.
func cleanPersonName(n string) string {
	words := strings.Fields(strings.Trim(n, " .,-"))
	for len(words) > 0 && nonPersonWords[strings.ToLower(strings.Trim(words[0], ".,"))] {
		words = words[1:]
	}
	if len(words) < 2 {
		return ""
	}
	for _, w := range words {
		lw := strings.ToLower(strings.Trim(w, ".,"))
		if nonPersonWords[lw] || strings.HasSuffix(lw, "'s") || strings.HasSuffix(lw, "’s") {
			return ""
		}
	}
	return strings.Join(words, " ")
}

// NameOverlapsCompany reports whether most of a person name's tokens also
// appear in the company name, which usually means a business name was
// mistaken for a person.
func NameOverlapsCompany(person, company string) bool {
	ct := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(company)) {
		ct[baseToken(w)] = true
	}
	words := strings.Fields(strings.ToLower(person))
	if len(words) == 0 {
		return false
	}
	n := 0
	for _, w := range words {
		if ct[baseToken(w)] {
			n++
		}
	}
	return n*2 > len(words)
}

func baseToken(w string) string {
	w = strings.Trim(w, ".,")
	w = strings.TrimSuffix(w, "'s")
	return strings.TrimSuffix(w, "’s")
}

func tidyTitle(t string) string {
	t = strings.Join(strings.Fields(strings.Trim(t, " ,:-()|")), " ")
	if t == "" {
		return ""
	}
	if strings.ToUpper(t) == t && len(t) <= 4 {
		return t
	}
	words := strings.Fields(t)
	for i, w := range words {
		lw := strings.ToLower(w)
		switch lw {
		case "ceo", "coo", "cfo", "cto", "vp":
			words[i] = strings.ToUpper(lw)
		case "and", "of", "&":
			words[i] = lw
		default:
			words[i] = strings.ToUpper(lw[:1]) + lw[1:]
		}
	}
	return strings.Join(words, " ")
}

// CleanJSON extracts a JSON object or array from model output that may
// carry markdown fences or surrounding prose.
func CleanJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	open, closer := "{", "}"
	if a, o := strings.Index(text, "["), strings.Index(text, "{"); a >= 0 && (o < 0 || a < o) {
		open, closer = "[", "]"
	}
	start := strings.Index(text, open)
	end := strings.LastIndex(text, closer)
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

// SplitName splits a full name into first and last parts. Middle names and
// initials are dropped.
func SplitName(full string) (first, last string) {
	words := strings.Fields(full)
	switch len(words) {
	case 0:
		return "", ""
	case 1:
		return words[0], ""
	default:
		return words[0], words[len(words)-1]
	}
}
