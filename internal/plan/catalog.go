package plan

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Service is a bookable service name with the alternative phrasings a
// customer might use for it.
type Service struct {
	Name    string
	Aliases []string
}

// Catalog resolves free-text service references to canonical names.
type Catalog struct {
	services []Service
	terms    []term // sorted longest first
}

type term struct {
	text    string // lower-cased
	service string
}

// NewCatalog builds a catalog from the configured services.
func NewCatalog(services []Service) *Catalog {
	c := &Catalog{services: services}
	for _, s := range services {
		c.terms = append(c.terms, term{text: strings.ToLower(s.Name), service: s.Name})
		for _, a := range s.Aliases {
			if a = strings.TrimSpace(a); a != "" {
				c.terms = append(c.terms, term{text: strings.ToLower(a), service: s.Name})
			}
		}
	}
	sort.SliceStable(c.terms, func(i, j int) bool {
		return len(c.terms[i].text) > len(c.terms[j].text)
	})
	return c
}

// Names returns the canonical service names in configuration order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.services))
	for i, s := range c.services {
		names[i] = s.Name
	}
	return names
}

// Resolve maps a name or alias to its canonical service name.
func (c *Catalog) Resolve(ref string) (string, bool) {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if ref == "" {
		return "", false
	}
	for _, t := range c.terms {
		if t.text == ref {
			return t.service, true
		}
	}
	// Tolerate references that embed a known term ("corte de cabelo masculino").
	if m := c.find(ref); len(m) > 0 {
		return m[0].service, true
	}
	return "", false
}

// Same reports whether two references name the same service.
func (c *Catalog) Same(a, b string) bool {
	ra, okA := c.Resolve(a)
	rb, okB := c.Resolve(b)
	if okA && okB {
		return ra == rb
	}
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

type mention struct {
	start, end int
	service    string
}

// find returns non-overlapping service mentions in lower-cased text in
// order of appearance. At any position the longest term wins.
func (c *Catalog) find(lower string) []mention {
	var all []mention
	for _, t := range c.terms {
		from := 0
		for {
			i := strings.Index(lower[from:], t.text)
			if i < 0 {
				break
			}
			start := from + i
			end := start + len(t.text)
			if wordBoundary(lower, start, end) {
				all = append(all, mention{start: start, end: end, service: t.service})
			}
			from = end
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].start != all[j].start {
			return all[i].start < all[j].start
		}
		return all[i].end-all[i].start > all[j].end-all[j].start
	})

	var out []mention
	lastEnd := -1
	for _, m := range all {
		if m.start < lastEnd {
			continue
		}
		out = append(out, m)
		lastEnd = m.end
	}
	return out
}

func wordBoundary(s string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:start])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	if end < len(s) {
		r, _ := utf8.DecodeRuneInString(s[end:])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
