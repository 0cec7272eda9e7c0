package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"remindcal/internal/analysis"
	"remindcal/internal/api"
	"remindcal/internal/google"
	"remindcal/internal/models"
	"remindcal/internal/syncer"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
)

const shutdownTimeout = 20 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API, the reminder scheduler and scheduled imports.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "Address to listen on, overrides http.listen."},
			&cli.BoolFlag{Name: "no-import", Usage: "Do not run scheduled imports."},
			&cli.BoolFlag{Name: "no-reminders", Usage: "Do not start the reminder scheduler."},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	rt, err := openRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	importer, err := rt.syncer(false)
	if err != nil {
		return err
	}

	sched := rt.scheduler()
	if !c.Bool("no-reminders") {
		sched.Start()
	}

	var imports *cron.Cron
	if rt.cfg.Import.Cron != "" && !c.Bool("no-import") {
		imports = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
		_, err := imports.AddFunc(rt.cfg.Import.Cron, func() {
			results, err := importer.Sync(ctx)
			logResults(rt, results)
			if err != nil {
				rt.logger.Error("Scheduled import finished with errors", "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid import schedule %q: %w", rt.cfg.Import.Cron, err)
		}
		imports.Start()
		rt.logger.Info("Scheduled imports enabled.", "cron", rt.cfg.Import.Cron)
	}

	srv := api.New(rt.logger, api.Deps{
		Engine:    rt.engine,
		Gate:      rt.gate,
		Analyzer:  rt.analyzer,
		Importer:  importer,
		Scheduler: sched,
	})

	addr := rt.cfg.HTTP.Listen
	if c.IsSet("listen") {
		addr = c.String("listen")
	}
	listenErr := make(chan error, 1)
	go func() {
		listenErr <- srv.Listen(addr)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		rt.logger.Info("Shutting down.")
	case serveErr = <-listenErr:
		if serveErr != nil {
			serveErr = fmt.Errorf("http server failed: %w", serveErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		rt.logger.Error("Failed to shut down HTTP server", "error", err)
	}
	if imports != nil {
		select {
		case <-imports.Stop().Done():
		case <-shutdownCtx.Done():
			rt.logger.Warn("Scheduled import still running at shutdown.")
		}
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		rt.logger.Error("Failed to stop reminder scheduler", "error", err)
	}
	return serveErr
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import events from the configured sources once.",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "owner", Usage: "Only import sources bound to this owner."},
			&cli.BoolFlag{Name: "dry-run", Aliases: []string{"d"}, Usage: "Fetch and log without writing."},
		},
		Action: func(c *cli.Context) error {
			rt, err := openRuntime(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			s, err := rt.syncer(c.Bool("dry-run"))
			if err != nil {
				return err
			}

			var results []syncer.Result
			var syncErr error
			if owner := c.Int64("owner"); owner != 0 {
				results, syncErr = s.SyncOwner(c.Context, owner)
			} else {
				results, syncErr = s.Sync(c.Context)
			}
			if err := newPrinter(c).results(results); err != nil {
				return err
			}
			if syncErr != nil {
				return fmt.Errorf("import finished with errors: %w", syncErr)
			}
			return nil
		},
	}
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authorize Google Calendar access for an owner.",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "owner", Required: true, Usage: "Owner to authorize."},
			&cli.BoolFlag{Name: "revoke", Usage: "Forget the owner's stored token instead."},
		},
		Action: func(c *cli.Context) error {
			rt, err := openRuntime(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			owner, err := requireOwner(c, "owner")
			if err != nil {
				return err
			}
			tokens := google.NewTokenStore(rt.cfg.Google.TokenDir)

			if c.Bool("revoke") {
				if err := tokens.Delete(owner); err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "Removed Google token for owner %d.\n", owner)
				return nil
			}

			oauth, err := google.OAuthConfig(rt.cfg.Google.ClientID, rt.cfg.Google.ClientSecret)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "Go to the following link in your browser then type the authorization code:\n%v\n", google.AuthCodeURL(oauth, owner))

			code, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && strings.TrimSpace(code) == "" {
				return fmt.Errorf("unable to read authorization code: %w", err)
			}
			token, err := google.TokenFromWeb(c.Context, oauth, strings.TrimSpace(code))
			if err != nil {
				return err
			}
			if err := tokens.Save(owner, token); err != nil {
				return err
			}
			rt.logger.Info("Google authorization saved.", "ownerID", owner)
			return nil
		},
	}
}

func eventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "List an owner's events.",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "owner", Required: true, Usage: "Owner whose events to list."},
			&cli.Int64Flag{Name: "as", Usage: "Read as this observer; requires a grant from the owner."},
			&cli.StringFlag{Name: "from", Usage: "Start of the range, YYYY-MM-DD or RFC 3339."},
			&cli.StringFlag{Name: "to", Usage: "End of the range, YYYY-MM-DD or RFC 3339."},
		},
		Action: func(c *cli.Context) error {
			rt, err := openRuntime(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			owner, err := requireOwner(c, "owner")
			if err != nil {
				return err
			}
			start, end, ranged, err := parseRange(c.String("from"), c.String("to"), rt.cfg.Location)
			if err != nil {
				return err
			}

			var events []models.Event
			observer := c.Int64("as")
			switch {
			case observer != 0 && observer != owner && ranged:
				events, err = rt.gate.ListReadableBetween(c.Context, observer, owner, start, end)
			case observer != 0 && observer != owner:
				events, err = rt.gate.ListReadableEvents(c.Context, observer, owner)
			case ranged:
				events, err = rt.engine.ListBetween(c.Context, start, end, owner)
			default:
				events, err = rt.engine.ListForOwner(c.Context, owner)
			}
			if err != nil {
				return err
			}
			return newPrinter(c).events(events, rt.cfg.Location)
		},
	}
}

func grantCommand() *cli.Command {
	return &cli.Command{
		Name:   "grant",
		Usage:  "Let an observer read an owner's events.",
		Flags:  grantFlags(),
		Action: grantAction(true),
	}
}

func revokeCommand() *cli.Command {
	return &cli.Command{
		Name:   "revoke",
		Usage:  "Withdraw an observer's read access.",
		Flags:  grantFlags(),
		Action: grantAction(false),
	}
}

func grantFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{Name: "owner", Required: true},
		&cli.Int64Flag{Name: "observer", Required: true},
	}
}

func grantAction(grant bool) cli.ActionFunc {
	return func(c *cli.Context) error {
		rt, err := openRuntime(c)
		if err != nil {
			return err
		}
		defer rt.Close()

		owner, err := requireOwner(c, "owner")
		if err != nil {
			return err
		}
		observer, err := requireOwner(c, "observer")
		if err != nil {
			return err
		}

		if grant {
			if err := rt.gate.Grant(c.Context, owner, observer); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "Observer %d can now read owner %d's events.\n", observer, owner)
			return nil
		}
		if err := rt.gate.Revoke(c.Context, owner, observer); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Observer %d can no longer read owner %d's events.\n", observer, owner)
		return nil
	}
}

func analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:  "analyze",
		Usage: "Summarize an owner's week.",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "owner", Required: true},
			&cli.StringFlag{Name: "week", Usage: "Any day of the week to analyze, YYYY-MM-DD. Defaults to the current week."},
		},
		Action: func(c *cli.Context) error {
			rt, err := openRuntime(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			owner, err := requireOwner(c, "owner")
			if err != nil {
				return err
			}

			var report analysis.Report
			if day := c.String("week"); day != "" {
				t, err := parseTime(day, rt.cfg.Location)
				if err != nil {
					return err
				}
				start, end := analysis.Week(t, rt.cfg.Location)
				report, err = rt.analyzer.Analyze(c.Context, owner, start, end)
				if err != nil {
					return err
				}
			} else {
				report, err = rt.analyzer.CurrentWeek(c.Context, owner)
				if err != nil {
					return err
				}
			}
			return newPrinter(c).report(report, rt.cfg.Location)
		},
	}
}

func logResults(rt *runtime, results []syncer.Result) {
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		rt.logger.Info("Import finished.", "ownerID", r.OwnerID, "source", r.Source,
			"fetched", r.Fetched, "created", r.Created, "updated", r.Updated, "unchanged", r.Unchanged, "failed", r.Failed)
	}
}

// parseRange parses optional --from/--to values. A date-only --to covers that whole day.
func parseRange(from, to string, loc *time.Location) (start, end time.Time, ok bool, err error) {
	if from == "" && to == "" {
		return time.Time{}, time.Time{}, false, nil
	}
	if from == "" || to == "" {
		return time.Time{}, time.Time{}, false, errors.New("--from and --to must be given together")
	}
	if start, err = parseTime(from, loc); err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	if end, err = parseTime(to, loc); err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	if len(to) == len(time.DateOnly) {
		end = end.AddDate(0, 0, 1)
	}
	return start, end, true, nil
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation(time.DateOnly, s, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}
