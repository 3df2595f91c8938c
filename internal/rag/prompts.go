package rag

import (
	"fmt"
	"strings"
	"time"

	"github.com/newshound/newshound/internal/news"
)

// contextMaxChars caps the assembled context passed to the model.
const contextMaxChars = 10_000

const askSystemPrompt = `You are a news analyst answering questions from Telegram channel posts.
Rules:
- Answer ONLY from the provided posts. Never invent facts.
- If the posts do not contain the answer, say so plainly.
- Mention which channel reported each claim when channels disagree.
- Be concise and factual.`

const digestSystemPrompt = `You are a news editor writing a digest of Telegram channel posts for a given period.
Rules:
- Use ONLY the provided posts.
- Group related posts into topics, most significant first.
- For each topic give a short headline and a one-or-two sentence summary.
- Note the source channel for key items.
- Do not pad: if the period was quiet, a short digest is correct.`

// noInfoAnswer is returned without calling the model when retrieval
// comes back empty.
const noInfoAnswer = "No relevant posts were found in the indexed channels for this question."

// emptyDigest is returned without calling the model when no posts fall
// inside the requested period.
const emptyDigest = "No posts were found in the indexed channels for this period."

// buildContext renders retrieved posts into a tagged context block,
// stopping before the character budget is exceeded. Returns the block
// and how many posts made it in.
func buildContext(results []news.SearchResult, budget int) (string, int) {
	var b strings.Builder
	included := 0
	for _, res := range results {
		entry := formatEntry(res.Document)
		if b.Len() > 0 && b.Len()+len(entry)+2 > budget {
			break
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(entry)
		included++
	}
	return b.String(), included
}

// formatEntry tags each post with its channel and date so the model can
// attribute claims.
func formatEntry(doc news.Document) string {
	date := "unknown date"
	if doc.Metadata.Date != nil {
		date = doc.Metadata.Date.UTC().Format("2006-01-02 15:04")
	}
	return fmt.Sprintf("[%s, %s]\n%s", doc.Metadata.Channel, date, doc.Content)
}

func askPrompt(contextBlock, question string) string {
	return fmt.Sprintf("Posts:\n%s\n\nQuestion: %s", contextBlock, question)
}

func digestPrompt(contextBlock, period string, maxTopics int) string {
	return fmt.Sprintf("Period: %s\nMaximum topics: %d\n\nPosts:\n%s", period, maxTopics, contextBlock)
}

// formatPeriod renders the closed interval for digest headers.
func formatPeriod(start, end time.Time) string {
	return fmt.Sprintf("%s — %s", start.Format("02.01.2006"), end.Format("02.01.2006"))
}
