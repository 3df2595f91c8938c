package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/newshound/newshound/internal/app"
	"github.com/newshound/newshound/internal/log"
	"github.com/newshound/newshound/internal/news"
)

// runDigest builds a period digest of the indexed posts.
func runDigest(logger log.Logger) error {
	digestFlags := flag.NewFlagSet("digest", flag.ContinueOnError)
	digestFlags.SetOutput(os.Stderr)
	from := digestFlags.String("from", "", "Period start, YYYY-MM-DD (default: yesterday)")
	to := digestFlags.String("to", "", "Period end, YYYY-MM-DD inclusive (default: today)")
	channels := digestFlags.String("channels", "", "Comma-separated channel handles to restrict the digest to")
	topics := digestFlags.Int("topics", 0, "Maximum digest topics")

	args := []string{}
	if len(os.Args) > 2 {
		args = os.Args[2:]
	}
	if err := digestFlags.Parse(args); err != nil {
		return fmt.Errorf("parsing digest flags: %w", err)
	}

	start, end, err := parsePeriod(*from, *to, time.Now().UTC())
	if err != nil {
		return err
	}

	return withApp(logger, func(ctx context.Context, a *app.App) error {
		resp, err := a.RAG.Summarize(ctx, news.SummaryRequest{
			StartDate: start,
			EndDate:   end,
			Channels:  splitHandles(*channels),
			MaxTopics: *topics,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Digest for %s\n\n", resp.Period)
		fmt.Println(renderMarkdown(resp.Summary))
		if resp.PostsProcessed > 0 {
			fmt.Printf("\n%d posts from %s\n",
				resp.PostsProcessed, strings.Join(mentions(resp.ChannelsIncluded), ", "))
		}
		return nil
	})
}

// parsePeriod resolves the digest interval. Empty bounds default to a
// yesterday-to-today window around now.
func parsePeriod(from, to string, now time.Time) (time.Time, time.Time, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	start := today.AddDate(0, 0, -1)
	if from != "" {
		parsed, err := time.Parse(time.DateOnly, from)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from %q, want YYYY-MM-DD: %w", from, err)
		}
		start = parsed
	}

	end := today
	if to != "" {
		parsed, err := time.Parse(time.DateOnly, to)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to %q, want YYYY-MM-DD: %w", to, err)
		}
		end = parsed
	}

	return start, end, nil
}

func mentions(handles []string) []string {
	out := make([]string, len(handles))
	for i, h := range handles {
		out[i] = "@" + h
	}
	return out
}
