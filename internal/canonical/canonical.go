// Package canonical derives stable, normalized identity keys for companies
// from whatever partial evidence a collector obtained. Keys are tagged
// strings like "domain:acme.ai" or "companies_house:12345678" and are the
// dedup primitive for the whole pipeline.
package canonical

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrInsufficientEvidence is returned when no candidate key can be derived.
var ErrInsufficientEvidence = eris.New("canonical: insufficient evidence to derive a key")

// Kind is the tag of a canonical key, ordered strongest first.
type Kind string

const (
	KindDomain         Kind = "domain"
	KindCompaniesHouse Kind = "companies_house"
	KindCrunchbase     Kind = "crunchbase"
	KindPitchbook      Kind = "pitchbook"
	KindGitHubOrg      Kind = "github_org"
	KindGitHubRepo     Kind = "github_repo"
	KindNameLoc        Kind = "name_loc"
)

// strengthScores rank key kinds by merge reliability.
var strengthScores = map[Kind]int{
	KindDomain:         100,
	KindCompaniesHouse: 95,
	KindCrunchbase:     80,
	KindPitchbook:      80,
	KindGitHubOrg:      50,
	KindGitHubRepo:     40,
	KindNameLoc:        10,
}

// Evidence is the bag of partial identifiers a collector extracted.
type Evidence struct {
	Website              string
	CompaniesHouseNumber string
	CrunchbaseID         string
	PitchbookID          string
	GitHubOrg            string
	GitHubRepo           string
	CompanyName          string
	Region               string
}

// Key formats a canonical key as "<kind>:<value>".
func Key(kind Kind, value string) string {
	return string(kind) + ":" + value
}

// KindOf extracts the kind tag from a canonical key, or "" if untagged.
func KindOf(key string) Kind {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return Kind(key[:i])
	}
	return ""
}

// IsStrong reports whether a key may be merged automatically across
// signals. Weak keys (github_org, github_repo, name_loc) need corroboration.
func IsStrong(key string) bool {
	switch KindOf(key) {
	case KindDomain, KindCompaniesHouse, KindCrunchbase, KindPitchbook:
		return true
	default:
		return false
	}
}

// StrengthScore ranks a key's merge reliability, higher is stronger.
func StrengthScore(key string) int {
	return strengthScores[KindOf(key)]
}

// Candidates derives an ordered, deduplicated list of candidate canonical
// keys from the evidence bag, strongest first. Returns
// ErrInsufficientEvidence when nothing is derivable.
func Candidates(ev Evidence) ([]string, error) {
	var out []string
	add := func(kind Kind, value string) {
		if value == "" {
			return
		}
		k := Key(kind, value)
		for _, existing := range out {
			if existing == k {
				return
			}
		}
		out = append(out, k)
	}

	add(KindDomain, NormalizeDomain(ev.Website))
	add(KindCompaniesHouse, NormalizeCompaniesHouse(ev.CompaniesHouseNumber))
	add(KindCrunchbase, normalizeProviderID(ev.CrunchbaseID))
	add(KindPitchbook, normalizeProviderID(ev.PitchbookID))
	add(KindGitHubOrg, Slug(ev.GitHubOrg))
	add(KindGitHubRepo, NormalizeGitHubRepo(ev.GitHubRepo))

	if name := Slug(ev.CompanyName); name != "" {
		if region := Slug(ev.Region); region != "" {
			add(KindNameLoc, name+"|"+region)
		} else {
			add(KindNameLoc, name)
		}
	}

	if len(out) == 0 {
		return nil, ErrInsufficientEvidence
	}
	return out, nil
}

// Primary returns the strongest candidate key for the evidence bag.
func Primary(ev Evidence) (string, error) {
	candidates, err := Candidates(ev)
	if err != nil {
		return "", err
	}
	return candidates[0], nil
}

// NormalizeDomain reduces a website or bare host to its registrable
// domain (eTLD+1), lowercased, with scheme, www, auth, port, and path
// stripped. Returns "" when no usable domain remains.
func NormalizeDomain(value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return ""
	}

	if !strings.Contains(v, "://") {
		v = "https://" + v
	}
	u, err := url.Parse(v)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	host = strings.Trim(host, ".")
	host = strings.TrimPrefix(host, "www.")

	if len(host) < 2 || !strings.Contains(host, ".") {
		return ""
	}

	// Reduce to eTLD+1 where the public suffix list knows the host;
	// fall back to the raw host for private or unknown suffixes.
	if etld1, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return etld1
	}
	return host
}

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lowercases, strips diacritics, and collapses separator runs to "-".
// Values shorter than two characters are rejected.
func Slug(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// Decompose and drop combining marks so "Café" slugs as "cafe".
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, s); err == nil {
		s = folded
	}

	s = strings.ToLower(s)
	s = nonAlnumRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) < 2 {
		return ""
	}
	return s
}

var alnumOnlyRe = regexp.MustCompile(`[^A-Za-z0-9]`)

// NormalizeCompaniesHouse keeps alphanumerics and lowercases, so
// "NI-123456" and "ni123456" collapse to the same key.
func NormalizeCompaniesHouse(value string) string {
	v := alnumOnlyRe.ReplaceAllString(strings.TrimSpace(value), "")
	v = strings.ToLower(v)
	if len(v) < 2 {
		return ""
	}
	return v
}

func normalizeProviderID(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	if len(v) < 2 {
		return ""
	}
	return v
}

// NormalizeGitHubRepo normalizes "Org/Repo" or a github.com URL to the
// slugged "org/repo" form.
func NormalizeGitHubRepo(value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return ""
	}

	var org, repo string
	if strings.Contains(v, "github.com") {
		if !strings.Contains(v, "://") {
			v = "https://" + v
		}
		u, err := url.Parse(v)
		if err != nil {
			return ""
		}
		parts := splitPath(u.Path)
		if len(parts) < 2 {
			return ""
		}
		org, repo = parts[0], parts[1]
	} else {
		parts := splitPath(v)
		if len(parts) < 2 {
			return ""
		}
		org, repo = parts[0], parts[1]
	}

	orgSlug := Slug(org)
	repoSlug := Slug(repo)
	if orgSlug == "" || repoSlug == "" {
		return ""
	}
	return orgSlug + "/" + repoSlug
}

func splitPath(p string) []string {
	var parts []string
	for _, seg := range strings.Split(strings.Trim(p, "/"), "/") {
		if seg != "" {
			parts = append(parts, seg)
		}
	}
	return parts
}
