// Package codegen builds human readable entity codes ("emp_ali", "emp_ali_2")
// from display names and probes them for uniqueness.
package codegen

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultMaxLen applies when a caller passes maxLen <= 0
const DefaultMaxLen = 50

const maxAttempts = 100000

var ErrEmptyCode = errors.New("code cannot be derived from an empty name")

// ExistsFunc reports whether code is already taken
type ExistsFunc func(ctx context.Context, code string) (bool, error)

// Options input for GenerateUniqueCode
type Options struct {
	Name   string
	Prefix string
	MaxLen int
	// Upper upper-cases the code before probing (item codes)
	Upper  bool
	Exists ExistsFunc
}

// Slugify lower-cases value, folds diacritics, collapses every run of
// non-alphanumeric characters into one underscore and trims the result
// to maxLen.
func Slugify(value string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	folded := fold(value)

	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}

	out := b.String()
	if len(out) > maxLen {
		out = strings.TrimRight(out[:maxLen], "_")
	}
	return out
}

func fold(value string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, value)
	if err != nil {
		return value
	}
	return out
}

// Base the unsuffixed code for name under prefix
func Base(name, prefix string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	slug := Slugify(name, maxLen)
	p := Slugify(prefix, maxLen)
	base := slug
	if p != "" {
		base = p + "_" + slug
	}
	base = strings.Trim(base, "_")
	if len(base) > maxLen {
		base = strings.TrimRight(base[:maxLen], "_")
	}
	return base
}

// GenerateUniqueCode returns Base(name, prefix) or, when taken, the first free
// base_2, base_3, ... The suffix is reserved from the right so the result
// never exceeds MaxLen.
func GenerateUniqueCode(ctx context.Context, opts Options) (string, error) {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	base := Base(opts.Name, opts.Prefix, maxLen)
	if base == "" {
		return "", ErrEmptyCode
	}

	for n := 1; n <= maxAttempts; n++ {
		candidate := withSuffix(base, n, maxLen)
		if candidate == "" {
			return "", fmt.Errorf("code %q cannot hold suffix %d within %d chars", base, n, maxLen)
		}
		if opts.Upper {
			candidate = strings.ToUpper(candidate)
		}
		if opts.Exists == nil {
			return candidate, nil
		}
		taken, err := opts.Exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("probe code %s: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free code for %q after %d attempts", base, maxAttempts)
}

func withSuffix(base string, n, maxLen int) string {
	if n == 1 {
		return base
	}
	suffix := "_" + strconv.Itoa(n)
	room := maxLen - len(suffix)
	if room <= 0 {
		return ""
	}
	head := base
	if len(head) > room {
		head = strings.TrimRight(head[:room], "_")
	}
	if head == "" {
		return ""
	}
	return head + suffix
}
