package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"

	"github.com/drallgood/gutendex-nexus/internal/api/gutendex"
	"github.com/drallgood/gutendex-nexus/internal/collections"
	"github.com/drallgood/gutendex-nexus/internal/favorites"
	"github.com/drallgood/gutendex-nexus/internal/models"
	"github.com/drallgood/gutendex-nexus/internal/settings"
)

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search the catalog",
		ArgsUsage: "[QUERY...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "language", Aliases: []string{"l"}, Usage: "Language `CODE`s, comma separated (en,fr)"},
			&cli.StringFlag{Name: "subject", Aliases: []string{"s"}, Usage: "Subject or bookshelf `TOPIC`"},
			&cli.StringFlag{Name: "author", Aliases: []string{"a"}, Usage: "Author name"},
			&cli.StringFlag{Name: "copyright", Usage: "true, false or empty for any"},
			&cli.StringFlag{Name: "sort", Usage: "Sort key (download_count, title, -title, popular, ascending, descending)"},
			&cli.IntFlag{Name: "pages", Value: 1, Usage: "Number of pages to load"},
			&cli.BoolFlag{Name: "print-url", Usage: "Print the request URL instead of searching"},
		},
		Action: withApp(runSearch),
	}
}

func filtersFromFlags(c *cli.Context, defaultSort string) (models.SearchFilters, error) {
	f := models.SearchFilters{
		Language:  c.String("language"),
		Subject:   c.String("subject"),
		Author:    c.String("author"),
		Copyright: strings.ToLower(c.String("copyright")),
		SortBy:    c.String("sort"),
	}
	if f.SortBy == "" {
		f.SortBy = defaultSort
	}
	return f, f.Validate()
}

func runSearch(ctx context.Context, a *app, c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	filters, err := filtersFromFlags(c, a.cfg.Search.DefaultSort)
	if err != nil {
		return err
	}
	if !filters.Searchable(query) {
		return gutendex.ErrUnconstrainedSearch
	}

	if c.Bool("print-url") {
		fmt.Fprintln(a.out, a.catalog.SearchURL(query, 1, filters))
		return nil
	}

	// SetFilters issues the page-1 search since the combination is searchable
	a.controller.SetQuery(query)
	if err := a.controller.SetFilters(ctx, filters); err != nil {
		return err
	}
	if err := a.history.Record(ctx, query); err != nil {
		a.log.Warn("Failed to record search history", map[string]interface{}{"error": err.Error()})
	}

	for page := 1; page < c.Int("pages") && a.controller.Snapshot().HasMore(); page++ {
		if err := a.controller.LoadMore(ctx); err != nil {
			return err
		}
	}

	printResults(a.out, a.controller.Snapshot(), a.favorites.Contains)
	return nil
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid book id %q", s)
	}
	return id, nil
}

func bookCommand() *cli.Command {
	return &cli.Command{
		Name:      "book",
		Usage:     "Show one book with its download formats",
		ArgsUsage: "ID",
		Action: withApp(func(ctx context.Context, a *app, c *cli.Context) error {
			id, err := parseID(c.Args().First())
			if err != nil {
				return err
			}
			book, err := a.catalog.GetBook(ctx, id)
			if err != nil {
				if gutendex.IsNotFound(err) {
					return fmt.Errorf("book %d does not exist", id)
				}
				return err
			}
			printBook(a.out, *book, a.favorites.Contains(id))
			return nil
		}),
	}
}

func favoritesCommand() *cli.Command {
	idAction := func(fn func(ctx context.Context, a *app, id int) error) cli.ActionFunc {
		return withApp(func(ctx context.Context, a *app, c *cli.Context) error {
			id, err := parseID(c.Args().First())
			if err != nil {
				return err
			}
			return fn(ctx, a, id)
		})
	}

	return &cli.Command{
		Name:  "favorites",
		Usage: "Manage favorite books",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "Load and show every favorite book",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "policy", Usage: "Bulk-load policy (all_or_nothing, partial)"},
				},
				Action: withApp(func(ctx context.Context, a *app, c *cli.Context) error {
					store := a.favorites
					if p := c.String("policy"); p != "" && p != store.Policy() {
						alt, err := favorites.New(ctx, a.store, favorites.Options{
							Policy:        p,
							MaxConcurrent: a.cfg.Catalog.MaxConcurrent,
							Notifier:      a.notifier,
							Logger:        a.log,
						})
						if err != nil {
							return err
						}
						defer alt.Close()
						store = alt
					}
					return listFavorites(ctx, a, store)
				}),
			},
			{
				Name:      "toggle",
				Usage:     "Add or remove a favorite",
				ArgsUsage: "ID",
				Action: idAction(func(ctx context.Context, a *app, id int) error {
					_, err := a.controller.ToggleFavorite(ctx, id)
					return err
				}),
			},
			{
				Name:      "remove",
				Usage:     "Remove a favorite",
				ArgsUsage: "ID",
				Action: idAction(func(ctx context.Context, a *app, id int) error {
					return a.favorites.Remove(ctx, id)
				}),
			},
			{
				Name:  "clear",
				Usage: "Remove every favorite",
				Action: withApp(func(ctx context.Context, a *app, c *cli.Context) error {
					if err := a.favorites.Clear(ctx); err != nil {
						return err
					}
					fmt.Fprintln(a.out, "Favorites cleared.")
					return nil
				}),
			},
		},
	}
}

func listFavorites(ctx context.Context, a *app, store *favorites.Store) error {
	ids := store.IDs()
	if len(ids) == 0 {
		fmt.Fprintln(a.out, "You have no favorite books yet.")
		return nil
	}

	bar := progressbar.Default(int64(len(ids)), "Loading favorites")
	result, err := store.BulkLoad(ctx, a.catalog, ids, func(done, total int) {
		_ = bar.Add(1)
	})
	_ = bar.Finish()

	var bulkErr *favorites.BulkLoadError
	if err != nil && !(errors.As(err, &bulkErr) && store.Policy() == favorites.PolicyPartial) {
		return err
	}

	fmt.Fprintf(a.out, "%d favorite books\n", len(ids))
	for i, b := range result.Books {
		printBookLine(a.out, i+1, b, true)
	}
	if len(result.Failed) > 0 {
		fmt.Fprintf(a.out, "Could not load: %v\n", result.Failed)
	}
	return nil
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show or clear the search history",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "Show recent searches, newest first",
				Action: withApp(func(ctx context.Context, a *app, c *cli.Context) error {
					entries := a.history.List()
					if len(entries) == 0 {
						fmt.Fprintln(a.out, "No searches yet.")
					}
					for i, q := range entries {
						fmt.Fprintf(a.out, "%3d. %s\n", i+1, q)
					}
					return nil
				}),
			},
			{
				Name:  "clear",
				Usage: "Forget every search",
				Action: withApp(func(ctx context.Context, a *app, c *cli.Context) error {
					return a.history.Clear(ctx)
				}),
			},
		},
	}
}

func apiKeyCommand() *cli.Command {
	withSettings := func(fn func(ctx context.Context, a *app, s *settings.Service, c *cli.Context) error) cli.ActionFunc {
		return withApp(func(ctx context.Context, a *app, c *cli.Context) error {
			s, err := a.settingsService()
			if err != nil {
				return err
			}
			return fn(ctx, a, s, c)
		})
	}

	return &cli.Command{
		Name:  "apikey",
		Usage: "Manage the API key used by AI collections",
		Subcommands: []*cli.Command{
			{
				Name:      "set",
				Usage:     "Store the API key (encrypted)",
				ArgsUsage: "KEY",
				Action: withSettings(func(ctx context.Context, a *app, s *settings.Service, c *cli.Context) error {
					if err := s.SetAPIKey(ctx, c.Args().First()); err != nil {
						return err
					}
					fmt.Fprintln(a.out, "API key saved.")
					return nil
				}),
			},
			{
				Name:  "show",
				Usage: "Show the stored key, masked",
				Action: withSettings(func(ctx context.Context, a *app, s *settings.Service, c *cli.Context) error {
					masked, err := s.Masked(ctx)
					if err != nil {
						return err
					}
					if masked == "" {
						fmt.Fprintln(a.out, "No API key stored.")
						return nil
					}
					fmt.Fprintln(a.out, masked)
					return nil
				}),
			},
			{
				Name:  "clear",
				Usage: "Remove the stored key",
				Action: withSettings(func(ctx context.Context, a *app, s *settings.Service, c *cli.Context) error {
					return s.ClearAPIKey(ctx)
				}),
			},
		},
	}
}

func portalCommand() *cli.Command {
	return &cli.Command{
		Name:      "portal",
		Usage:     "Open a portal: search, favorites, settings or a collection",
		ArgsUsage: "NAME",
		Action: withApp(func(ctx context.Context, a *app, c *cli.Context) error {
			return openPortal(ctx, a, c.Args().First())
		}),
	}
}

func openPortal(ctx context.Context, a *app, name string) error {
	dest, err := a.controller.ApplyPortal(ctx, name)
	if err != nil {
		return err
	}

	switch dest.Panel {
	case collections.PanelFavorites:
		return listFavorites(ctx, a, a.favorites)
	case collections.PanelSettings:
		s, err := a.settingsService()
		if err != nil {
			return err
		}
		has, err := s.HasAPIKey(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "API key stored: %t\n", has)
		return nil
	}

	if dest.Prefilled() {
		if c, ok := collections.Get(dest.Collection); ok {
			fmt.Fprintf(a.out, "%s\n", c.Name)
		}
		printResults(a.out, a.controller.Snapshot(), a.favorites.Contains)
		return nil
	}
	fmt.Fprintln(a.out, "Search panel: use `search QUERY` or the interactive shell.")
	return nil
}
