// Package extractor recovers contact fields from a licensee detail page.
//
// The directory obfuscates the contact email by rendering roughly twenty
// near-identical spans, all hidden by default CSS, with a single inline
// style rule marking the real one visible. The extractor reads that rule,
// resolves the target span, and validates its text before accepting it.
package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoEmail marks a detail page that published no recoverable contact
// email. It is an expected outcome, not a fetch or parse failure, and is
// counted separately from run errors.
var ErrNoEmail = errors.New("no published email on detail page")

// NamePolicy selects how multi-token display names are split.
type NamePolicy string

const (
	// NameFirstLast keeps only the first and last tokens, discarding middle
	// names and initials. This is wrong for suffixes like "Jr." and for
	// multi-word surnames, which is why the policy is configurable.
	NameFirstLast NamePolicy = "first_last"
	// NameFull keeps everything before the final token in the first-name
	// field.
	NameFull NamePolicy = "full"
)

// Profile is the set of fields recovered from one detail page.
type Profile struct {
	FirstName string
	LastName  string
	Firm      string
	Email     string
	Website   string
}

var (
	visibleRulePattern = regexp.MustCompile(`#(e\d+)\s*\{\s*display\s*:\s*inline\s*;?\s*\}`)
	recordIDPattern    = regexp.MustCompile(`#\d+`)
	websiteVarPattern  = regexp.MustCompile(`var memberWebsite = '([^']+)'`)
	websiteLinePattern = regexp.MustCompile(`Website:\s*(\S+)`)
	poBoxPattern       = regexp.MustCompile(`(?i)^P\.?O\.?\s*Box`)
	whitespacePattern  = regexp.MustCompile(`\s+`)
)

// Extractor parses detail-page HTML.
type Extractor struct {
	namePolicy NamePolicy
}

// New builds an Extractor. An empty policy defaults to NameFirstLast.
func New(policy NamePolicy) *Extractor {
	if policy == "" {
		policy = NameFirstLast
	}
	return &Extractor{namePolicy: policy}
}

// Extract parses one detail page. It returns ErrNoEmail when the page
// published no contact field or the recovered value fails validation; the
// auxiliary fields are tolerant of absence and never cause an error.
func (e *Extractor) Extract(html []byte) (Profile, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return Profile{}, fmt.Errorf("parse detail page: %w", err)
	}

	email, ok := extractEmail(doc)
	if !ok {
		return Profile{}, ErrNoEmail
	}

	first, last := e.extractName(doc)
	return Profile{
		FirstName: first,
		LastName:  last,
		Firm:      extractFirm(doc),
		Email:     email,
		Website:   extractWebsite(doc),
	}, nil
}

// extractEmail finds the one style rule of the shape "#eN{display:inline;}",
// resolves the span it targets, and normalizes its text. Everything else on
// the page is a decoy.
func extractEmail(doc *goquery.Document) (string, bool) {
	styleText := doc.Find("style").Text()
	m := visibleRulePattern.FindStringSubmatch(styleText)
	if m == nil {
		return "", false
	}

	span := doc.Find("#" + m[1])
	if span.Length() == 0 {
		return "", false
	}

	email := strings.ToLower(whitespacePattern.ReplaceAllString(span.Text(), ""))
	if !validEmail(email) {
		return "", false
	}
	return email, true
}

// validEmail accepts values shaped like an address: an "@" with a "."
// somewhere after it.
func validEmail(email string) bool {
	at := strings.Index(email, "@")
	if at <= 0 {
		return false
	}
	return strings.Contains(email[at:], ".")
}

// extractName reads the display name from the first heading that carries the
// directory's numeric record identifier, e.g. "Jane Q Doe #123456".
func (e *Extractor) extractName(doc *goquery.Document) (first, last string) {
	var nameText string
	doc.Find("h3 b").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if !recordIDPattern.MatchString(text) {
			return true
		}
		nameText = strings.TrimSpace(
			whitespacePattern.ReplaceAllString(recordIDPattern.ReplaceAllString(text, ""), " "),
		)
		return false
	})

	parts := strings.Fields(nameText)
	if len(parts) == 0 {
		return "", ""
	}
	if len(parts) == 1 {
		return parts[0], ""
	}
	if e.namePolicy == NameFull {
		return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
	}
	return parts[0], parts[len(parts)-1]
}

// extractFirm derives the organization name from the text preceding the
// first comma of the address line. A leading street number or PO box means
// the line starts with the street address and no firm was published.
func extractFirm(doc *goquery.Document) string {
	var addressText string
	doc.Find("p.nostyle").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if !strings.Contains(text, "Address:") {
			return true
		}
		addressText = strings.TrimSpace(strings.Replace(text, "Address:", "", 1))
		return false
	})
	if addressText == "" {
		return ""
	}

	comma := strings.Index(addressText, ",")
	if comma < 0 {
		return ""
	}
	candidate := strings.TrimSpace(addressText[:comma])
	if candidate == "" {
		return ""
	}
	if candidate[0] >= '0' && candidate[0] <= '9' {
		return ""
	}
	if poBoxPattern.MatchString(candidate) {
		return ""
	}
	return candidate
}

// extractWebsite prefers the embedded script variable and falls back to the
// labeled text field. The directory renders "Not Available" (truncated to
// "Not" in some layouts) when no site was published.
func extractWebsite(doc *goquery.Document) string {
	scriptText := doc.Find("script").Text()
	if m := websiteVarPattern.FindStringSubmatch(scriptText); m != nil && m[1] != "" {
		return m[1]
	}

	var websiteLine string
	doc.Find("p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if !strings.Contains(text, "Website:") {
			return true
		}
		websiteLine = text
		return false
	})

	m := websiteLinePattern.FindStringSubmatch(websiteLine)
	if m == nil {
		return ""
	}
	url := strings.TrimSpace(m[1])
	if url == "Not Available" || url == "Not" {
		return ""
	}
	return url
}
