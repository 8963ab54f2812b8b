package mimetypes

import (
	"mime"
	"path/filepath"
	"strings"
)

// DefaultAllowed is the out-of-the-box allow-list. A trailing "/*"
// accepts every subtype of the family.
var DefaultAllowed = []string{
	"image/*",
	"video/*",
	"audio/*",
	"text/plain",
	"text/csv",
	"application/pdf",
	"application/zip",
	"application/json",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

const octetStream = "application/octet-stream"

// Allowlist answers whether a resolved MIME type may be stored.
type Allowlist struct {
	exact    map[string]struct{}
	families map[string]struct{}
	describe string
}

// New builds an allow-list from patterns like "image/png" or "image/*".
// An empty slice falls back to DefaultAllowed.
func New(patterns []string) *Allowlist {
	if len(patterns) == 0 {
		patterns = DefaultAllowed
	}

	a := &Allowlist{
		exact:    make(map[string]struct{}),
		families: make(map[string]struct{}),
		describe: strings.Join(patterns, ", "),
	}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if family, ok := strings.CutSuffix(p, "/*"); ok {
			a.families[family] = struct{}{}
			continue
		}
		a.exact[p] = struct{}{}
	}
	return a
}

// IsAllowed reports whether mimeType passes the allow-list. Any
// parameters ("; charset=utf-8") are ignored.
func (a *Allowlist) IsAllowed(mimeType string) bool {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if _, ok := a.exact[mt]; ok {
		return true
	}
	family, _, ok := strings.Cut(mt, "/")
	if !ok {
		return false
	}
	_, ok = a.families[family]
	return ok
}

// Describe returns a human-readable rendering of the allow-list for
// error messages.
func (a *Allowlist) Describe() string {
	return a.describe
}

// Resolve picks the effective MIME type for an upload: the declared
// content type when present and meaningful, else a lookup by filename
// extension, else application/octet-stream.
func Resolve(declared, filename string) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != octetStream {
		if i := strings.IndexByte(declared, ';'); i >= 0 {
			declared = strings.TrimSpace(declared[:i])
		}
		return strings.ToLower(declared)
	}

	if byExt := mime.TypeByExtension(filepath.Ext(filename)); byExt != "" {
		if i := strings.IndexByte(byExt, ';'); i >= 0 {
			byExt = strings.TrimSpace(byExt[:i])
		}
		return strings.ToLower(byExt)
	}

	return octetStream
}
