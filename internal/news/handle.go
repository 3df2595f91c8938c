package news

import (
	"fmt"
	"regexp"
	"strings"
)

// handlePattern matches a bare Telegram channel handle. Telegram requires at
// least 5 characters; the first must be a letter.
var handlePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{4,31}$`)

// linkPattern extracts the handle from t.me / telegram.me links.
var linkPattern = regexp.MustCompile(`^(?:https?://)?(?:t\.me|telegram\.me)/(?:s/)?([A-Za-z0-9_]+)`)

// ParseHandle normalizes a channel reference to its bare handle.
// Accepted forms: "@name", "https://t.me/name", "t.me/s/name?q=x", "name".
// Returns ErrInvalidChannel when no valid handle can be extracted.
func ParseHandle(link string) (string, error) {
	s := strings.TrimSpace(link)
	s = strings.TrimPrefix(s, "@")

	if m := linkPattern.FindStringSubmatch(s); m != nil {
		s = m[1]
	}

	if !handlePattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidChannel, link)
	}
	return s, nil
}

// ChannelLink returns the canonical public link for a handle.
func ChannelLink(handle string) string {
	return "https://t.me/" + handle
}

// PostLink returns the canonical permalink for a single post.
func PostLink(handle string, messageID int64) string {
	return fmt.Sprintf("https://t.me/%s/%d", handle, messageID)
}
