package service

import (
	"context"
	"regexp"
	"strings"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// placeholder domains seeded into dev databases
var excludedEmailSuffixes = []string{"example.com", "example.org", "example.net"}

func placeholderEmail(lower string) bool {
	for _, suffix := range excludedEmailSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// AdminEmailStore raw admin addresses
type AdminEmailStore interface {
	ActiveAdminEmails(ctx context.Context) ([]string, error)
}

// AdminDirectory deliverable addresses of active administrators
type AdminDirectory struct {
	store AdminEmailStore
}

func NewAdminDirectory(store AdminEmailStore) *AdminDirectory {
	return &AdminDirectory{store: store}
}

// ActiveAdminEmails storage order, filtered
func (d *AdminDirectory) ActiveAdminEmails(ctx context.Context) ([]string, error) {
	raw, err := d.store.ActiveAdminEmails(ctx)
	if err != nil {
		return nil, err
	}
	return FilterAdminEmails(raw), nil
}

// FilterAdminEmails trims, drops malformed and placeholder-domain addresses,
// and removes case-insensitive duplicates keeping the first spelling.
func FilterAdminEmails(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, e := range raw {
		e = strings.TrimSpace(e)
		if e == "" || !emailPattern.MatchString(e) {
			continue
		}
		lower := strings.ToLower(e)
		if placeholderEmail(lower) {
			continue
		}
		if seen[lower] {
			continue
		}
		seen[lower] = true
		out = append(out, e)
	}
	return out
}
