package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"tickerdesk/internal/app"
	"tickerdesk/internal/clipboard"
	"tickerdesk/internal/dashboard"
	"tickerdesk/internal/domain"
	"tickerdesk/internal/prompt"
	"tickerdesk/internal/remote"
	"tickerdesk/internal/store"
	"tickerdesk/internal/watchlist"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tickerdesk-cli %s\n", version)
		},
	}
}

func newListCmd(flags *globalFlags) *cobra.Command {
	var sortLabel string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the watchlist grouped by industry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, ok := dashboard.ParseSortMode(sortLabel)
			if !ok {
				return fmt.Errorf("unknown sort mode %q", sortLabel)
			}
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				a.Store.Load(ctx)
				view := dashboard.ComputeView(a.Store.Records(), mode)
				writeView(cmd.OutOrStdout(), view)
				fmt.Fprintf(cmd.OutOrStdout(), "\n%d real, %d syncing, %d error; %s\n",
					view.Confirmed, view.Placeholders, view.Errored,
					dashboard.FormatUpdated(a.Store.LastUpdated(), time.Now()))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&sortLabel, "sort", "s", "list", "sort within groups: list, code, change, volume")
	return cmd
}

func writeView(w io.Writer, view dashboard.View) {
	if len(view.Groups) == 0 {
		fmt.Fprintln(w, "watchlist is empty")
		return
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Industry", "Code", "Name", "Close", "Chg", "Chg%", "Volume", "Status"})
	table.SetAutoWrapText(false)
	table.SetAutoMergeCells(true)
	table.SetRowLine(false)
	for _, g := range view.Groups {
		for _, r := range g.Records {
			closeText, volText := "-", "-"
			if c, ok := r.LatestClose(); ok {
				closeText = dashboard.FormatPrice(c, r.Currency)
				volText = dashboard.FormatVolume(float64(r.History[0].Volume))
			}
			status := dashboard.Badge(r)
			if r.Error && r.ErrorMessage != "" {
				status += ": " + r.ErrorMessage
			}
			table.Append([]string{
				g.Name, r.Code, r.Name, closeText,
				dashboard.FormatChange(r.Change), dashboard.FormatPct(r.PctChange),
				volText, status,
			})
		}
	}
	table.Render()
}

func newAddCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "add CODE...",
		Short: "Add tickers and sync them to the hosting list",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				a.Store.Load(ctx)
				var errs []error
				for _, arg := range args {
					rec, err := a.Store.Add(ctx, arg)
					switch {
					case errors.Is(err, watchlist.ErrDuplicate):
						fmt.Fprintf(cmd.OutOrStdout(), "%s is already on the watchlist\n", domain.NormalizeCode(arg))
					case err != nil:
						errs = append(errs, fmt.Errorf("%q: %w", arg, err))
					default:
						fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s)\n", rec.Code, rec.Industry)
					}
				}
				return errors.Join(errs...)
			})
		},
	}
}

func newRemoveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "remove CODE...",
		Aliases: []string{"rm"},
		Short:   "Remove tickers locally and from the hosting list",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				var errs []error
				for _, arg := range args {
					if err := a.Store.Remove(ctx, arg); err != nil {
						errs = append(errs, fmt.Errorf("%q: %w", arg, err))
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", domain.NormalizeCode(arg))
				}
				return errors.Join(errs...)
			})
		},
	}
}

func newRefreshCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Reload the snapshot and report tickers still syncing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				a.Store.Refresh(ctx, false)
				if a.Store.LastUpdated().IsZero() {
					return fmt.Errorf("snapshot at %s could not be loaded", a.Snapshot.Location())
				}
				view := dashboard.ComputeView(a.Store.Records(), dashboard.SortListOrder)
				fmt.Fprintf(cmd.OutOrStdout(), "loaded %d tickers from %s\n", view.Confirmed+view.Errored, a.Snapshot.Location())
				if view.Placeholders > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "%d ticker(s) still syncing\n", view.Placeholders)
				}
				return nil
			})
		},
	}
}

func newTriggerCmd(flags *globalFlags) *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Dispatch the batch job that rebuilds the snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				a.Store.Load(ctx)
				if err := a.Store.TriggerBatchRun(ctx); err != nil {
					if errors.Is(err, remote.ErrNotConfigured) {
						return errors.New("hosting API not configured; run 'tickerdesk-cli config set' first")
					}
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "batch job dispatched")
				if wait <= 0 {
					return nil
				}
				return waitForData(ctx, cmd.OutOrStdout(), a.Store, wait)
			})
		},
	}
	cmd.Flags().DurationVarP(&wait, "wait", "w", 0, "keep polling the snapshot until syncing tickers confirm or this long passes")
	return cmd
}

// pollInterval spaces snapshot reloads while waiting for a triggered run.
var pollInterval = 15 * time.Second

// waitForData polls the snapshot until the store stops watching. Confirmed
// tickers are reported through the store's notifications.
func waitForData(ctx context.Context, w io.Writer, s *watchlist.Store, limit time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		s.Refresh(ctx, true)
		if !s.NeedsPolling() {
			return nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				fmt.Fprintln(w, "stopped waiting; the batch job may still be running")
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func newStatusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Compare the local, hosted and published ticker lists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				cfg := a.Store.RemoteConfig(ctx)

				var (
					published []domain.TickerRecord
					hosted    remote.ListFile
					mirrored  []string
				)
				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					records, err := a.Snapshot.Fetch(gctx)
					if err != nil {
						return fmt.Errorf("fetching snapshot: %w", err)
					}
					published = records
					return nil
				})
				if cfg.Complete() {
					g.Go(func() error {
						lf, err := a.Remote.ReadListFile(gctx, cfg)
						if err != nil {
							return fmt.Errorf("reading hosted list: %w", err)
						}
						hosted = lf
						return nil
					})
				}
				if a.Mirror != nil {
					g.Go(func() error {
						syms, err := a.Mirror.Symbols(gctx)
						if err != nil {
							return fmt.Errorf("reading alpaca watchlist: %w", err)
						}
						mirrored = syms
						return nil
					})
				}
				if err := g.Wait(); err != nil {
					return err
				}

				saved := a.Store.SavedCodes(ctx)
				publishedCodes := make([]string, 0, len(published))
				for _, r := range published {
					publishedCodes = append(publishedCodes, r.Code)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "snapshot:  %s (%d tickers)\n", a.Snapshot.Location(), len(publishedCodes))
				fmt.Fprintf(out, "local:     %d saved\n", len(saved))
				if cfg.Complete() {
					fmt.Fprintf(out, "hosted:    %s/%s (%d tickers, sha %s)\n", cfg.Owner, cfg.Repo, len(hosted.Codes), shortSHA(hosted.SHA))
					if pending := missingFrom(hosted.Codes, publishedCodes); len(pending) > 0 {
						fmt.Fprintf(out, "pending:   %s (hosted but not yet published)\n", strings.Join(pending, ", "))
					}
					if local := missingFrom(saved, hosted.Codes); len(local) > 0 {
						fmt.Fprintf(out, "unsynced:  %s (saved locally only)\n", strings.Join(local, ", "))
					}
				} else {
					fmt.Fprintln(out, "hosted:    not configured")
				}
				if a.Mirror != nil {
					fmt.Fprintf(out, "alpaca:    %d symbols (%s)\n", len(mirrored), a.Config.Alpaca.Watchlist)
				}
				return nil
			})
		},
	}
}

// missingFrom returns the codes of a that b lacks, in a's order.
func missingFrom(a, b []string) []string {
	var out []string
	for _, c := range a {
		if !slices.Contains(b, c) {
			out = append(out, c)
		}
	}
	return out
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

func newPromptCmd(flags *globalFlags) *cobra.Command {
	var (
		date    string
		outPath string
		copyOut bool
	)
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Render the briefing prompt for the current watchlist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if date == "" {
				date = time.Now().Format(domain.DateLayout)
			} else if _, err := time.Parse(domain.DateLayout, date); err != nil {
				return fmt.Errorf("invalid --date %q: want YYYY-MM-DD", date)
			}
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				a.Store.Load(ctx)
				records := a.Store.Records()
				text, err := prompt.Build(records, date, time.Now())
				if err != nil {
					return err
				}

				switch {
				case copyOut:
					if err := clipboard.NewOSC52().Copy(text); err != nil {
						return fmt.Errorf("copying prompt: %w", err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "copied prompt: %s\n", prompt.Preview(records))
				case outPath != "":
					if err := os.WriteFile(outPath, []byte(text), 0o644); err != nil {
						return fmt.Errorf("writing prompt: %w", err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %s\n", outPath, prompt.Preview(records))
				default:
					fmt.Fprint(cmd.OutOrStdout(), text)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&date, "date", "d", "", "target date for the briefing (default today)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the prompt to a file")
	cmd.Flags().BoolVar(&copyOut, "copy", false, "copy the prompt to the clipboard via the terminal")
	return cmd
}

func newConfigCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the hosting API settings",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the hosting API settings with the token masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				cfg := a.Store.RemoteConfig(ctx).Redacted()
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "token: %s\nowner: %s\nrepo:  %s\n", orUnset(cfg.Token), orUnset(cfg.Owner), orUnset(cfg.Repo))
				return nil
			})
		},
	}

	var token, owner, repo string
	set := &cobra.Command{
		Use:   "set",
		Short: "Update the hosting API settings; omitted flags keep their value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				cfg := a.Store.RemoteConfig(ctx)
				if cmd.Flags().Changed("token") {
					cfg.Token = token
				}
				if cmd.Flags().Changed("owner") {
					cfg.Owner = owner
				}
				if cmd.Flags().Changed("repo") {
					cfg.Repo = repo
				}
				return a.Store.SaveRemoteConfig(ctx, cfg)
			})
		},
	}
	set.Flags().StringVar(&token, "token", "", "personal access token")
	set.Flags().StringVar(&owner, "owner", "", "repository owner")
	set.Flags().StringVar(&repo, "repo", "", "repository name")

	cmd.AddCommand(show, set)
	return cmd
}

func orUnset(s string) string {
	if s == "" {
		return "(unset)"
	}
	return s
}

func newHistoryCmd(flags *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [CODE]",
		Short: "List archived tickers, or print a ticker's archived bars",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				archive := a.Archive
				if archive == nil {
					archive = store.NewParquetArchive(a.Config.Storage.DataDir)
				}
				out := cmd.OutOrStdout()

				if len(args) == 0 {
					codes, err := archive.ListCodes(ctx)
					if err != nil {
						return err
					}
					if len(codes) == 0 {
						fmt.Fprintln(out, "no archived history")
						return nil
					}
					fmt.Fprintln(out, strings.Join(codes, "\n"))
					return nil
				}

				code := domain.NormalizeCode(args[0])
				bars, err := archive.ReadHistory(ctx, code)
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("no archived history for %s", code)
				}
				if err != nil {
					return err
				}
				if limit > 0 && limit < len(bars) {
					bars = bars[:limit]
				}
				writeBars(out, code, bars)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 30, "newest bars to print (0 for all)")
	return cmd
}

func writeBars(w io.Writer, code string, bars []domain.Bar) {
	currency := domain.CurrencyFor(code)
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Date", "Open", "High", "Low", "Close", "Volume", "K", "D", "MACD"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, b := range bars {
		table.Append([]string{
			b.Date,
			dashboard.FormatPrice(b.Open, currency),
			dashboard.FormatPrice(b.High, currency),
			dashboard.FormatPrice(b.Low, currency),
			dashboard.FormatPrice(b.Close, currency),
			dashboard.FormatInt(b.Volume),
			optional(b.K, 1),
			optional(b.D, 1),
			optional(b.MACD, 2),
		})
	}
	table.Render()
}

func optional(v *float64, prec int) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', prec, 64)
}
