package telegram

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/newshound/newshound/internal/news"
)

// previewPage is one parsed chunk of a channel's web preview.
type previewPage struct {
	info  ChannelInfo
	posts []Post // ascending message ID, as rendered
}

func parsePreviewPage(r io.Reader, handle string) (*previewPage, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("reading HTML: %w", err)
	}

	page := &previewPage{}
	page.info.Title = strings.TrimSpace(doc.Find(".tgme_channel_info_header_title").First().Text())
	page.info.Description = strings.TrimSpace(doc.Find(".tgme_channel_info_description").First().Text())
	if username := doc.Find(".tgme_channel_info_header_username").First().Text(); username != "" {
		page.info.Handle = strings.TrimPrefix(strings.TrimSpace(username), "@")
	}

	doc.Find(".tgme_widget_message").Each(func(_ int, sel *goquery.Selection) {
		post, ok := parseMessage(sel, handle)
		if ok {
			page.posts = append(page.posts, post)
		}
	})
	return page, nil
}

// parseChannelInfo validates that the page actually describes a channel.
// Preview pages for unknown or private handles render without the info
// header, with HTTP 200.
func parseChannelInfo(page *previewPage) (ChannelInfo, error) {
	if page.info.Title == "" {
		return ChannelInfo{}, fmt.Errorf("%w: no public preview", news.ErrInvalidChannel)
	}
	return page.info, nil
}

func parseMessage(sel *goquery.Selection, handle string) (Post, bool) {
	dataPost, ok := sel.Attr("data-post")
	if !ok {
		return Post{}, false
	}
	// data-post is "<handle>/<messageID>".
	idx := strings.LastIndexByte(dataPost, '/')
	if idx < 0 {
		return Post{}, false
	}
	id, err := strconv.ParseInt(dataPost[idx+1:], 10, 64)
	if err != nil || id <= 0 {
		return Post{}, false
	}

	post := Post{
		ID:   id,
		URL:  news.PostLink(handle, id),
		Text: messageText(sel),
	}

	if datetime, ok := sel.Find(".tgme_widget_message_date time").First().Attr("datetime"); ok {
		if t, err := time.Parse(time.RFC3339, datetime); err == nil {
			post.Date = t.UTC()
		}
	}
	post.Views = parseViews(sel.Find(".tgme_widget_message_views").First().Text())
	return post, true
}

// messageText extracts the post body. Media-only posts carry a typed
// placeholder so they still land in the index as evidence that the post
// exists.
func messageText(sel *goquery.Selection) string {
	text := strings.TrimSpace(sel.Find(".tgme_widget_message_text").First().Text())
	if text != "" {
		return text
	}
	switch {
	case sel.Find(".tgme_widget_message_photo_wrap").Length() > 0:
		return "[photo]"
	case sel.Find(".tgme_widget_message_video_player").Length() > 0:
		return "[video]"
	case sel.Find(".tgme_widget_message_document").Length() > 0:
		return "[document]"
	}
	return ""
}

// parseViews turns the abbreviated counter ("847", "1.2K", "3.4M") into
// an absolute number. Unparseable input yields 0.
func parseViews(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	mult := int64(1)
	switch s[len(s)-1] {
	case 'K', 'k':
		mult = 1_000
		s = s[:len(s)-1]
	case 'M', 'm':
		mult = 1_000_000
		s = s[:len(s)-1]
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0
	}
	return int64(f * float64(mult))
}
