package validation

import (
	"errors"
	"net/url"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	ErrEmptyMessage   = errors.New("message needs a body or an attachment")
	ErrMessageTooLong = errors.New("message body exceeds the maximum length")
	ErrBadMediaURL    = errors.New("media url is not a valid http(s) url")
)

func MaxMessageLength() int {
	maxStr := os.Getenv("MAX_MESSAGE_LENGTH")
	if maxStr == "" {
		return 4000
	}
	max, err := strconv.Atoi(maxStr)
	if err != nil || max < 1 {
		return 4000
	}
	return max
}

func NormalizeBody(body string) string {
	return strings.TrimSpace(body)
}

// ValidateCompose rejects malformed composes before any network call is
// made. At least one of body/mediaURL must be present.
func ValidateCompose(body, mediaURL string) error {
	body = NormalizeBody(body)

	if body == "" && mediaURL == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(body) > MaxMessageLength() {
		return ErrMessageTooLong
	}
	if mediaURL != "" {
		u, err := url.Parse(mediaURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return ErrBadMediaURL
		}
	}
	return nil
}
