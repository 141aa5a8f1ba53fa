// Package domain classifies email domains for use as company blocking keys.
package domain

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// personalProviders is the built-in denylist of consumer email providers.
// Their domains are shared by unrelated businesses' employees and must
// never be used to group contacts into a company.
var personalProviders = []string{
	"gmail.com",
	"yahoo.com",
	"hotmail.com",
	"outlook.com",
	"icloud.com",
	"me.com",
	"aol.com",
	"live.com",
}

// emailRe is a deliberately strict format check: one local part, one @,
// a dotted domain with a plausible TLD.
var emailRe = regexp.MustCompile(`^[A-Za-z0-9!#$%&'*+/=?^_` + "`" + `{|}~.\-]+@[A-Za-z0-9](?:[A-Za-z0-9\-]*[A-Za-z0-9])?(?:\.[A-Za-z0-9](?:[A-Za-z0-9\-]*[A-Za-z0-9])?)+$`)

// Classification is the result of classifying an email address.
type Classification struct {
	// Domain is the lower-cased domain after the @, empty if the email
	// failed validation.
	Domain string
	// Personal is true when the domain belongs to a consumer provider.
	Personal bool
	// Valid is false when the email failed the format check.
	Valid bool
}

// Classifier classifies email addresses against the personal-provider denylist.
type Classifier struct {
	personal map[string]struct{}
}

// NewClassifier creates a Classifier. Extra domains are appended to the
// built-in denylist (lower-cased).
func NewClassifier(extra ...string) *Classifier {
	personal := make(map[string]struct{}, len(personalProviders)+len(extra))
	for _, d := range personalProviders {
		personal[d] = struct{}{}
	}
	for _, d := range extra {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			personal[d] = struct{}{}
		}
	}
	return &Classifier{personal: personal}
}

// Classify extracts and classifies the domain of an email address.
// Input is untrusted free text.
func (c *Classifier) Classify(email string) Classification {
	email = strings.TrimSpace(email)
	if email == "" || !emailRe.MatchString(email) {
		return Classification{}
	}

	at := strings.LastIndex(email, "@")
	d := strings.ToLower(email[at+1:])

	_, personal := c.personal[d]
	return Classification{Domain: d, Personal: personal, Valid: true}
}

// LocalPart returns the lower-cased text before the @ of an email, or ""
// if the email has no @.
func LocalPart(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return ""
	}
	return strings.ToLower(email[:at])
}

// NameFromDomain derives a display name from a domain: the registrable
// label is title-cased and hyphens become spaces, so "acme-corp.com"
// yields "Acme Corp".
func NameFromDomain(d string) string {
	label, _, ok := strings.Cut(d, ".")
	if !ok || label == "" {
		label = d
	}
	label = strings.ReplaceAll(label, "-", " ")
	return titleCaser.String(label)
}

// NameFromLocalPart derives a display name from an email local part, so
// "jane.doe" yields "Jane Doe".
func NameFromLocalPart(local string) string {
	local = strings.Map(func(r rune) rune {
		switch r {
		case '.', '_', '-', '+':
			return ' '
		}
		return r
	}, local)
	local = strings.Join(strings.Fields(local), " ")
	return titleCaser.String(local)
}
