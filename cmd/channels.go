package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/newshound/newshound/internal/app"
	"github.com/newshound/newshound/internal/config"
	"github.com/newshound/newshound/internal/ingest"
	"github.com/newshound/newshound/internal/log"
	"github.com/newshound/newshound/internal/news"
)

// runChannels dispatches the channels subcommands.
func runChannels(logger log.Logger) error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: newshound channels <add|remove|refresh|pause|resume|list> [handle]")
	}
	sub := os.Args[2]
	if sub == "add" {
		return runChannelsAdd(logger, os.Args[3:])
	}

	needHandle := sub != "list"
	handle := ""
	if needHandle {
		if len(os.Args) < 4 {
			return fmt.Errorf("usage: newshound channels %s <handle>", sub)
		}
		handle = os.Args[3]
	}

	return withApp(logger, func(ctx context.Context, a *app.App) error {
		switch sub {
		case "remove":
			if err := a.Ingest.RemoveChannel(ctx, handle); err != nil {
				return err
			}
			fmt.Printf("Removed @%s and its indexed posts\n", handle)
			return nil

		case "refresh":
			res, err := a.Ingest.RefreshChannel(ctx, handle)
			if err != nil {
				return err
			}
			printRefresh(res)
			return nil

		case "pause":
			if err := a.Ingest.Pause(ctx, handle); err != nil {
				return err
			}
			fmt.Printf("Paused @%s\n", handle)
			return nil

		case "resume":
			if err := a.Ingest.Resume(ctx, handle); err != nil {
				return err
			}
			fmt.Printf("Resumed @%s\n", handle)
			return nil

		case "list":
			channels, err := a.Ingest.Channels(ctx)
			if err != nil {
				return err
			}
			printChannels(channels)
			return nil

		default:
			return fmt.Errorf("unknown channels subcommand: %s", sub)
		}
	})
}

// runChannelsAdd catalogs a channel and, unless --no-index is given,
// runs its initial indexing.
func runChannelsAdd(logger log.Logger, args []string) error {
	addFlags := flag.NewFlagSet("channels add", flag.ContinueOnError)
	addFlags.SetOutput(os.Stderr)
	noIndex := addFlags.Bool("no-index", false, "Register the channel without indexing its posts")
	limit := addFlags.Int("limit", 0, "Cap how many posts the initial indexing pulls")
	if err := addFlags.Parse(args); err != nil {
		return fmt.Errorf("parsing add flags: %w", err)
	}

	handle := addFlags.Arg(0)
	if handle == "" {
		return fmt.Errorf("usage: newshound channels add [flags] <handle>")
	}

	return withApp(logger, func(ctx context.Context, a *app.App) error {
		ch, err := a.Ingest.AddChannel(ctx, handle, !*noIndex, *limit)
		if err != nil {
			return err
		}
		if *noIndex {
			fmt.Printf("Added %s (%s), indexing deferred\n", ch.Mention(), ch.Title)
			return nil
		}
		fmt.Printf("Added %s (%s), %d posts indexed\n", ch.Mention(), ch.Title, ch.PostsCount)
		return nil
	})
}

// runRefreshAll refreshes every active channel.
func runRefreshAll(logger log.Logger) error {
	return withApp(logger, func(ctx context.Context, a *app.App) error {
		results, err := a.Ingest.RefreshAll(ctx)
		for _, res := range results {
			printRefresh(res)
		}
		return err
	})
}

// withApp loads config, builds the application and runs fn with signal
// handling. Used by all one-shot commands.
func withApp(logger log.Logger, fn func(context.Context, *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	return fn(ctx, a)
}

func printRefresh(res ingest.RefreshResult) {
	watermark := "-"
	if res.Watermark != nil {
		watermark = res.Watermark.Format(time.RFC3339)
	}
	fmt.Printf("@%s: fetched %d, indexed %d, watermark %s\n",
		res.Handle, res.Fetched, res.Indexed, watermark)
}

func printChannels(channels []news.Channel) {
	if len(channels) == 0 {
		fmt.Println("No channels tracked. Add one with: newshound channels add <handle>")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "HANDLE\tTITLE\tSTATUS\tPOSTS\tLAST POST")
	for _, ch := range channels {
		lastPost := "-"
		if ch.LastPostDate != nil {
			lastPost = ch.LastPostDate.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "@%s\t%s\t%s\t%d\t%s\n",
			ch.Handle, ch.Title, ch.Status, ch.PostsCount, lastPost)
	}
	_ = w.Flush()
}
