package models

import (
	"fmt"
	"strings"
)

// Sort keys accepted by the catalog
const (
	SortDownloadCount = "download_count"
	SortTitle         = "title"
	SortTitleDesc     = "-title"
	SortPopular       = "popular"
	SortAscending     = "ascending"
	SortDescending    = "descending"
)

// DefaultSort is the catalog's own ordering; it is never sent on the wire
const DefaultSort = SortDownloadCount

// Copyright filter values
const (
	CopyrightAny       = ""
	CopyrightProtected = "true"
	CopyrightPublic    = "false"
)

var validSorts = map[string]bool{
	SortDownloadCount: true,
	SortTitle:         true,
	SortTitleDesc:     true,
	SortPopular:       true,
	SortAscending:     true,
	SortDescending:    true,
}

// SearchFilters are the advanced search options. A value is always replaced
// as a whole, never merged field by field.
type SearchFilters struct {
	Language  string `json:"language,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Author    string `json:"author,omitempty"`
	Copyright string `json:"copyright,omitempty"`
	SortBy    string `json:"sort_by,omitempty"`
}

// DefaultFilters returns cleared filters with the default sort
func DefaultFilters() SearchFilters {
	return SearchFilters{SortBy: DefaultSort}
}

// Searchable reports whether a search with query and these filters is
// constrained enough to be sent. Without free text, a subject or an author
// the catalog would return everything, so no request is made.
func (f SearchFilters) Searchable(query string) bool {
	return strings.TrimSpace(query) != "" ||
		strings.TrimSpace(f.Subject) != "" ||
		strings.TrimSpace(f.Author) != ""
}

// ActiveCount returns how many filters differ from their default
func (f SearchFilters) ActiveCount() int {
	n := 0
	for _, v := range []string{f.Language, f.Subject, f.Author, f.Copyright} {
		if v != "" {
			n++
		}
	}
	if f.SortBy != "" && f.SortBy != DefaultSort {
		n++
	}
	return n
}

// Validate checks the enumerated fields
func (f SearchFilters) Validate() error {
	switch f.Copyright {
	case CopyrightAny, CopyrightProtected, CopyrightPublic:
	default:
		return fmt.Errorf("invalid copyright filter %q: expected true, false or empty", f.Copyright)
	}
	if f.SortBy != "" && !validSorts[f.SortBy] {
		return fmt.Errorf("invalid sort key %q", f.SortBy)
	}
	return nil
}

// With returns a copy of f with one field replaced by name.
// Names match the shell's "filter key=value" syntax.
func (f SearchFilters) With(key, value string) (SearchFilters, error) {
	value = strings.TrimSpace(value)
	switch strings.ToLower(key) {
	case "language", "lang", "languages":
		f.Language = value
	case "subject", "topic":
		f.Subject = value
	case "author":
		f.Author = value
	case "copyright":
		f.Copyright = strings.ToLower(value)
	case "sort", "sort_by", "sortby":
		if value == "" {
			value = DefaultSort
		}
		f.SortBy = value
	default:
		return f, fmt.Errorf("unknown filter %q", key)
	}
	return f, f.Validate()
}
