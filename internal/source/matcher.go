package source

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// maxListedCandidates caps how many candidates an ambiguity error names
const maxListedCandidates = 5

// Candidate is the asset chosen for download.
type Candidate struct {
	// Text is the matched text
	Text string
	// URL is the absolute download URL
	URL string
}

// SelectAsset evaluates locator and returns the single candidate accepted
// by pattern. A nil pattern accepts every candidate. The pattern is tried
// against the candidate text and against the file name at the end of its
// link. No survivor is ErrNoMatchFound; more than one is ErrAmbiguousMatch,
// never a guess.
func SelectAsset(doc Document, locator string, pattern *regexp.Regexp) (Candidate, error) {
	matches, err := doc.Query(locator)
	if err != nil {
		return Candidate{}, err
	}

	var survivors []Match
	for _, m := range matches {
		if m.Link == "" {
			continue
		}
		if pattern == nil || pattern.MatchString(m.Text) || pattern.MatchString(LinkBase(m.Link)) {
			survivors = append(survivors, m)
		}
	}

	switch len(survivors) {
	case 0:
		if len(matches) == 0 {
			return Candidate{}, fmt.Errorf("%w: locator %q matched nothing", ErrNoMatchFound, locator)
		}
		return Candidate{}, fmt.Errorf("%w: none of %d candidates of %q match %s", ErrNoMatchFound, len(matches), locator, describePattern(pattern))
	case 1:
		return Candidate{Text: survivors[0].Text, URL: survivors[0].Link}, nil
	default:
		return Candidate{}, fmt.Errorf("%w: %d candidates match %s: %s", ErrAmbiguousMatch, len(survivors), describePattern(pattern), listCandidates(survivors))
	}
}

// SelectVersion evaluates locator and returns the trimmed text of its first
// match. Repeated version text is normal on release pages, so later matches
// are ignored. When re is set the version is its first capture group, or
// the whole match when the group is absent or empty.
func SelectVersion(doc Document, locator string, re *regexp.Regexp) (string, error) {
	matches, err := doc.Query(locator)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: version locator %q matched nothing", ErrNoMatchFound, locator)
	}

	version := strings.TrimSpace(matches[0].Text)
	if version == "" {
		return "", fmt.Errorf("%w: version locator %q matched empty text", ErrNoMatchFound, locator)
	}

	if re == nil {
		return version, nil
	}

	sub := re.FindStringSubmatch(version)
	if sub == nil {
		return "", fmt.Errorf("%w: version_regex %q does not match %q", ErrNoMatchFound, re, version)
	}
	if len(sub) > 1 && strings.TrimSpace(sub[1]) != "" {
		return strings.TrimSpace(sub[1]), nil
	}
	if v := strings.TrimSpace(sub[0]); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: version_regex %q matched empty text in %q", ErrNoMatchFound, re, version)
}

// LinkBase returns the unescaped last path element of a URL.
func LinkBase(link string) string {
	u, err := url.Parse(link)
	if err != nil || u.Path == "" {
		return path.Base(link)
	}
	return path.Base(u.Path)
}

func describePattern(pattern *regexp.Regexp) string {
	if pattern == nil {
		return "any anchor text"
	}
	return fmt.Sprintf("anchor text %q", pattern.String())
}

func listCandidates(ms []Match) string {
	names := make([]string, 0, maxListedCandidates+1)
	for i, m := range ms {
		if i == maxListedCandidates {
			names = append(names, fmt.Sprintf("and %d more", len(ms)-maxListedCandidates))
			break
		}
		names = append(names, LinkBase(m.Link))
	}
	return strings.Join(names, ", ")
}
