package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/peterh/liner"
	"github.com/urfave/cli/v2"

	"github.com/drallgood/gutendex-nexus/internal/collections"
	"github.com/drallgood/gutendex-nexus/internal/detail"
	"github.com/drallgood/gutendex-nexus/internal/search"
)

var shellCommands = []string{
	"search", "filter", "filters", "reset", "more", "open", "back",
	"fav", "favorites", "portal", "history", "help", "quit", "exit",
}

const shellHelp = `Commands:
  search TEXT        search the catalog (empty TEXT repeats the last query)
  filter KEY=VALUE   set a filter: language, subject, author, copyright, sort
  filters            show the current filters
  reset              clear all filters
  more               load the next page
  open N             show result N in detail
  back               return to the result list
  fav [N]            toggle result N, or the open book, as favorite
  favorites          load and list favorite books
  portal NAME        open a portal (search, favorites, settings, literature, science, history)
  history            show recent searches
  quit               leave the shell`

func shellCommand() *cli.Command {
	return &cli.Command{
		Name:  "shell",
		Usage: "Start an interactive session",
		Action: withApp(func(ctx context.Context, a *app, c *cli.Context) error {
			return runShell(ctx, a)
		}),
	}
}

func runShell(ctx context.Context, a *app) error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(func(input string) []string {
		var out []string
		for _, cmd := range shellCommands {
			if strings.HasPrefix(cmd, strings.ToLower(input)) {
				out = append(out, cmd)
			}
		}
		return out
	})

	// oldest first so the newest is one arrow key away
	entries := a.history.List()
	for i := len(entries) - 1; i >= 0; i-- {
		line.AppendHistory("search " + entries[i])
	}

	fmt.Fprintln(a.out, "gutendex-nexus shell. Type `help` for commands.")
	sh := &shell{app: a}
	for {
		input, err := line.Prompt("nexus> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		quit, err := sh.exec(ctx, input)
		if err != nil {
			fmt.Fprintf(a.out, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

// shell interprets one line at a time against the app's controller
type shell struct {
	app *app
}

func (s *shell) exec(ctx context.Context, input string) (bool, error) {
	a := s.app
	cmd, arg, _ := strings.Cut(strings.TrimSpace(input), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "quit", "exit":
		return true, nil

	case "help", "?":
		fmt.Fprintln(a.out, shellHelp)

	case "search":
		if arg != "" {
			a.controller.SetQuery(arg)
		}
		v := a.controller.Snapshot()
		if !v.Filters.Searchable(v.Query) {
			return false, fmt.Errorf("type something to search for, or set a subject or author filter")
		}
		if err := a.controller.Submit(ctx); err != nil {
			return false, err
		}
		s.showResults()

	case "filter":
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return false, fmt.Errorf("usage: filter KEY=VALUE")
		}
		filters, err := a.controller.Snapshot().Filters.With(strings.TrimSpace(key), value)
		if err != nil {
			return false, err
		}
		if err := a.controller.SetFilters(ctx, filters); err != nil {
			return false, err
		}
		printFilters(a.out, filters)
		if a.controller.Snapshot().State == search.StateIdle {
			return false, nil
		}
		s.showResults()

	case "filters":
		printFilters(a.out, a.controller.Snapshot().Filters)

	case "reset":
		if err := a.controller.ResetFilters(ctx); err != nil {
			return false, err
		}
		printFilters(a.out, a.controller.Snapshot().Filters)

	case "more":
		if !a.controller.Snapshot().HasMore() {
			fmt.Fprintln(a.out, "Nothing more to load.")
			return false, nil
		}
		if err := a.controller.LoadMore(ctx); err != nil {
			return false, err
		}
		s.showResults()

	case "open":
		n, err := parseID(arg)
		if err != nil {
			return false, fmt.Errorf("usage: open N")
		}
		book, err := a.controller.SelectIndex(n - 1)
		if err != nil {
			return false, err
		}
		printBook(a.out, book, a.controller.IsFavorite(book.ID))

	case "back":
		a.controller.Back()
		s.showResults()

	case "fav":
		id, err := s.favoriteTarget(arg)
		if err != nil {
			return false, err
		}
		if _, err := a.controller.ToggleFavorite(ctx, id); err != nil {
			return false, err
		}

	case "favorites":
		return false, listFavorites(ctx, a, a.favorites)

	case "portal":
		if arg == "" {
			fmt.Fprintf(a.out, "Portals: %s\n", strings.Join(portalNames(), ", "))
			return false, nil
		}
		return false, openPortal(ctx, a, arg)

	case "collections":
		printCollections(a.out)

	case "history":
		for i, q := range a.history.List() {
			fmt.Fprintf(a.out, "%3d. %s\n", i+1, q)
		}

	default:
		return false, fmt.Errorf("unknown command %q, type `help`", cmd)
	}
	return false, nil
}

// favoriteTarget is result N when given, otherwise the book open in detail
func (s *shell) favoriteTarget(arg string) (int, error) {
	v := s.app.controller.Snapshot()
	if arg == "" {
		if v.Mode == detail.ModeDetail && v.Selected != nil {
			return v.Selected.ID, nil
		}
		return 0, fmt.Errorf("usage: fav N (or open a book first)")
	}
	n, err := parseID(arg)
	if err != nil || n > len(v.Results.Books) {
		return 0, fmt.Errorf("no result at position %s", arg)
	}
	return v.Results.Books[n-1].ID, nil
}

func (s *shell) showResults() {
	v := s.app.controller.Snapshot()
	if v.Mode == detail.ModeDetail && v.Selected != nil {
		printBook(s.app.out, *v.Selected, s.app.controller.IsFavorite(v.Selected.ID))
		return
	}
	printResults(s.app.out, v, s.app.controller.IsFavorite)
}

// portalNames lists what `portal` accepts, for help output
func portalNames() []string {
	names := []string{string(collections.PanelSearch), string(collections.PanelFavorites), string(collections.PanelSettings)}
	for _, c := range collections.All() {
		names = append(names, c.ID)
	}
	return names
}
