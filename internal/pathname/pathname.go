// SPDX-License-Identifier: MIT
// Package pathname derives filesystem-safe path segments from remote
// display names and checks assembled paths against length limits.
package pathname

import (
	"crypto/md5" //nolint:gosec // content hash for path shortening, not security
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// Placeholder replaces names that sanitize down to nothing.
	Placeholder = "unnamed"

	// shortThreshold is the sanitized length above which short mode rewrites
	// the segment. shortPrefix runes are kept and hashChars hex characters
	// of a content hash are appended, so shortened segments land exactly at
	// the threshold and are never rewritten again.
	shortThreshold = 50
	shortPrefix    = 45
	hashChars      = 5
)

// forbidden are characters replaced with '_' in path segments.
const forbidden = `<>:"|?*`

// Sanitize maps an arbitrary display name to a non-empty path segment.
// It trims surrounding whitespace, replaces forbidden characters with
// underscores, and strips trailing dots and spaces. Sanitize is
// idempotent.
func Sanitize(name string) string {
	s := strings.TrimSpace(name)
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(forbidden, r) {
			return '_'
		}
		return r
	}, s)
	s = strings.TrimRight(s, ". ")
	if s == "" {
		return Placeholder
	}
	return s
}

// Short sanitizes name and, when the result is longer than 50 runes,
// truncates it to a 45-rune prefix plus a 5-character content hash of the
// full sanitized string. Identical inputs always produce identical
// output, and shortened segments are short enough that re-applying Short
// leaves them unchanged.
func Short(name string) string {
	s := Sanitize(name)
	if utf8.RuneCountInString(s) <= shortThreshold {
		return s
	}
	runes := []rune(s)
	return string(runes[:shortPrefix]) + hashSuffix(s)
}

// Slug maps a display name to a remote namespace path segment: sanitized,
// lowercased, with spaces collapsed to hyphens.
func Slug(name string) string {
	s := strings.ToLower(Sanitize(name))
	return strings.ReplaceAll(s, " ", "-")
}

func hashSuffix(s string) string {
	sum := md5.Sum([]byte(s)) //nolint:gosec // not a security boundary
	return fmt.Sprintf("%x", sum)[:hashChars]
}

// WarnLevel grades a path length check.
type WarnLevel int

const (
	// WarnNone means the path is within limits.
	WarnNone WarnLevel = iota
	// WarnSoft means the path is long enough to deserve attention.
	WarnSoft
	// WarnHard means the path exceeds the configured maximum.
	WarnHard
)

const (
	// DefaultMaxLength is the default hard limit for full paths.
	DefaultMaxLength = 240
	// SoftWarnLength is where advisory warnings begin.
	SoftWarnLength = 200
)

// Guard checks assembled paths against a configurable maximum length.
// Checks are advisory only; callers surface warnings but never block on
// them.
type Guard struct {
	// MaxLength is the hard limit. Zero or negative means DefaultMaxLength.
	MaxLength int
}

// Check grades path by its rune length.
func (g Guard) Check(path string) WarnLevel {
	limit := g.MaxLength
	if limit <= 0 {
		limit = DefaultMaxLength
	}
	n := utf8.RuneCountInString(path)
	switch {
	case n > limit:
		return WarnHard
	case n >= SoftWarnLength:
		return WarnSoft
	default:
		return WarnNone
	}
}
