package models

import (
	"fmt"
	"sort"
	"strings"
)

// GutenbergBaseURL is where a book's landing page lives on Project Gutenberg
const GutenbergBaseURL = "https://www.gutenberg.org/ebooks"

// Person represents an author or translator in the Gutendex catalog
type Person struct {
	Name      string `json:"name"`
	BirthYear *int   `json:"birth_year,omitempty"`
	DeathYear *int   `json:"death_year,omitempty"`
}

// Lifespan renders the birth and death years as "1832-1898".
// Unknown years are left blank; both unknown returns "".
func (p Person) Lifespan() string {
	if p.BirthYear == nil && p.DeathYear == nil {
		return ""
	}
	var b, d string
	if p.BirthYear != nil {
		b = fmt.Sprint(*p.BirthYear)
	}
	if p.DeathYear != nil {
		d = fmt.Sprint(*p.DeathYear)
	}
	return b + "-" + d
}

// Book represents a book from the Gutendex catalog
type Book struct {
	ID            int               `json:"id"`
	Title         string            `json:"title"`
	Authors       []Person          `json:"authors"`
	Translators   []Person          `json:"translators,omitempty"`
	Subjects      []string          `json:"subjects"`
	Bookshelves   []string          `json:"bookshelves,omitempty"`
	Languages     []string          `json:"languages"`
	Copyright     *bool             `json:"copyright,omitempty"`
	MediaType     string            `json:"media_type,omitempty"`
	Formats       map[string]string `json:"formats"`
	DownloadCount int               `json:"download_count"`
}

// AuthorNames joins the author names with ", "
func (b Book) AuthorNames() string {
	names := make([]string, 0, len(b.Authors))
	for _, a := range b.Authors {
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}

// GutenbergURL returns the Project Gutenberg page of the book
func (b Book) GutenbergURL() string {
	return fmt.Sprintf("%s/%d", GutenbergBaseURL, b.ID)
}

// DownloadFormat is a downloadable rendition of a book
type DownloadFormat struct {
	Type string // EPUB, PDF, HTML or TXT
	MIME string
	URL  string
}

// DownloadFormats returns the formats a reader can open directly.
// Only plain text, EPUB, PDF and HTML are kept; the rest (images, zip
// bundles, RDF) are dropped.
func (b Book) DownloadFormats() []DownloadFormat {
	formats := make([]DownloadFormat, 0, len(b.Formats))
	for mime, url := range b.Formats {
		label := formatLabel(mime)
		if label == "" {
			continue
		}
		formats = append(formats, DownloadFormat{Type: label, MIME: mime, URL: url})
	}
	sort.Slice(formats, func(i, j int) bool {
		if formats[i].Type != formats[j].Type {
			return formats[i].Type < formats[j].Type
		}
		return formats[i].MIME < formats[j].MIME
	})
	return formats
}

func formatLabel(mime string) string {
	switch {
	case strings.Contains(mime, "epub"):
		return "EPUB"
	case strings.Contains(mime, "pdf"):
		return "PDF"
	case strings.Contains(mime, "html"):
		return "HTML"
	case strings.Contains(mime, "text/plain"):
		return "TXT"
	default:
		return ""
	}
}

// IsPublicDomain reports whether the catalog marks the book as out of copyright.
// A missing flag is treated as unknown and returns false.
func (b Book) IsPublicDomain() bool {
	return b.Copyright != nil && !*b.Copyright
}

// SearchResponse is one page of /books/ results
type SearchResponse struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []Book  `json:"results"`
}

// SearchResultPage is the accumulated result list of a search session
type SearchResultPage struct {
	Total int
	Page  int
	Books []Book
}

// HasMore reports whether "load more" can fetch further pages
func (p SearchResultPage) HasMore() bool {
	return len(p.Books) < p.Total
}

// Clone returns a copy whose book slice does not alias p
func (p SearchResultPage) Clone() SearchResultPage {
	books := make([]Book, len(p.Books))
	copy(books, p.Books)
	return SearchResultPage{Total: p.Total, Page: p.Page, Books: books}
}
