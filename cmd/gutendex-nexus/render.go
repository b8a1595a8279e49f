package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/drallgood/gutendex-nexus/internal/collections"
	"github.com/drallgood/gutendex-nexus/internal/models"
	"github.com/drallgood/gutendex-nexus/internal/notify"
	"github.com/drallgood/gutendex-nexus/internal/search"
)

const maxSubjects = 3

func printBookLine(w io.Writer, n int, b models.Book, favorite bool) {
	star := " "
	if favorite {
		star = "*"
	}
	authors := b.AuthorNames()
	if authors == "" {
		authors = "Unknown author"
	}
	fmt.Fprintf(w, "%3d.%s [%d] %s by %s (%s, %d downloads)\n",
		n, star, b.ID, b.Title, authors, strings.Join(b.Languages, ","), b.DownloadCount)
}

func printResults(w io.Writer, v search.View, isFavorite func(int) bool) {
	if len(v.Results.Books) == 0 {
		fmt.Fprintln(w, "No books found.")
		return
	}
	fmt.Fprintf(w, "Showing %d of %d books (page %d)\n", len(v.Results.Books), v.Results.Total, v.Results.Page)
	for i, b := range v.Results.Books {
		printBookLine(w, i+1, b, isFavorite != nil && isFavorite(b.ID))
	}
	if v.HasMore() {
		fmt.Fprintln(w, "More results available.")
	}
}

func printBook(w io.Writer, b models.Book, favorite bool) {
	fmt.Fprintf(w, "%s\n", b.Title)
	for _, a := range b.Authors {
		if span := a.Lifespan(); span != "" {
			fmt.Fprintf(w, "  by %s (%s)\n", a.Name, span)
		} else {
			fmt.Fprintf(w, "  by %s\n", a.Name)
		}
	}
	if len(b.Translators) > 0 {
		names := make([]string, len(b.Translators))
		for i, t := range b.Translators {
			names[i] = t.Name
		}
		fmt.Fprintf(w, "  translated by %s\n", strings.Join(names, ", "))
	}
	fmt.Fprintf(w, "  id:        %d\n", b.ID)
	fmt.Fprintf(w, "  languages: %s\n", strings.Join(b.Languages, ", "))
	fmt.Fprintf(w, "  downloads: %d\n", b.DownloadCount)
	if b.Copyright != nil {
		if *b.Copyright {
			fmt.Fprintln(w, "  copyright: protected")
		} else {
			fmt.Fprintln(w, "  copyright: public domain")
		}
	}
	if len(b.Subjects) > 0 {
		subjects := b.Subjects
		if len(subjects) > maxSubjects {
			subjects = subjects[:maxSubjects]
		}
		fmt.Fprintf(w, "  subjects:  %s\n", strings.Join(subjects, "; "))
	}
	if favorite {
		fmt.Fprintln(w, "  * in your favorites")
	}

	formats := b.DownloadFormats()
	if len(formats) > 0 {
		fmt.Fprintln(w, "  downloads:")
		for _, f := range formats {
			fmt.Fprintf(w, "    %-4s %s\n", f.Type, f.URL)
		}
	}
	fmt.Fprintf(w, "  %s\n", b.GutenbergURL())
}

func printFilters(w io.Writer, f models.SearchFilters) {
	show := func(v string) string {
		if v == "" {
			return "-"
		}
		return v
	}
	fmt.Fprintf(w, "language=%s subject=%s author=%s copyright=%s sort=%s (%d active)\n",
		show(f.Language), show(f.Subject), show(f.Author), show(f.Copyright), show(f.SortBy), f.ActiveCount())
}

func printCollections(w io.Writer) {
	for _, c := range collections.All() {
		fmt.Fprintf(w, "%-10s %s\n", c.ID, c.Name)
		fmt.Fprintf(w, "           terms:    %s\n", strings.Join(c.SearchTerms, ", "))
		fmt.Fprintf(w, "           subjects: %s\n", strings.Join(c.Subjects, ", "))
	}
}

// consoleNotifier prints notifications on w
func consoleNotifier(w io.Writer) notify.Notifier {
	return notify.Func(func(n notify.Notification) {
		mark := "ok"
		if n.Level == notify.LevelError {
			mark = "error"
		}
		fmt.Fprintf(w, "[%s] %s: %s\n", mark, n.Title, n.Message)
	})
}
