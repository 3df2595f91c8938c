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

// runAsk answers a single question from the indexed posts.
func runAsk(logger log.Logger) error {
	askFlags := flag.NewFlagSet("ask", flag.ContinueOnError)
	askFlags.SetOutput(os.Stderr)
	channels := askFlags.String("channels", "", "Comma-separated channel handles to restrict the answer to")
	topK := askFlags.Int("top-k", 0, "How many posts to use as context")

	args := []string{}
	if len(os.Args) > 2 {
		args = os.Args[2:]
	}
	if err := askFlags.Parse(args); err != nil {
		return fmt.Errorf("parsing ask flags: %w", err)
	}

	question := strings.Join(askFlags.Args(), " ")
	if strings.TrimSpace(question) == "" {
		return fmt.Errorf("usage: newshound ask [flags] <question>")
	}

	return withApp(logger, func(ctx context.Context, a *app.App) error {
		resp, err := a.RAG.Complete(ctx, news.CompletionRequest{
			Question: question,
			TopK:     *topK,
			Channels: splitHandles(*channels),
		})
		if err != nil {
			return err
		}

		fmt.Println(renderMarkdown(resp.Answer))
		printSources(resp.Sources)
		return nil
	})
}

func printSources(sources []news.SourceRef) {
	if len(sources) == 0 {
		return
	}
	fmt.Println()
	fmt.Println("Sources:")
	for _, src := range sources {
		when := ""
		if src.Date != nil {
			when = src.Date.Format(time.DateOnly) + ", "
		}
		ref := "@" + src.Channel
		if src.URL != "" {
			ref = src.URL
		}
		fmt.Printf("  - %s (%sscore %.2f)\n", ref, when, src.Score)
	}
}

// splitHandles parses a comma-separated handle list, dropping blanks.
func splitHandles(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var handles []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(part), "@"))
		if part != "" {
			handles = append(handles, part)
		}
	}
	return handles
}
