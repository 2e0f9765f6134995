// Package grouping derives the render model from a thread's message list:
// local-calendar day buckets, consecutive-sender clustering and per-message
// display flags. Everything here is pure computation over a snapshot; nothing
// is cached, and recomputing on an unchanged list yields identical output.
package grouping

import (
	"time"

	"github.com/ilkhoeri/youapp-test-sub001/internal/models"
)

// Position describes where a message sits inside a same-sender, same-day
// cluster. It drives avatar and sender-name suppression.
type Position string

const (
	PositionOnly   Position = "only"
	PositionTop    Position = "top"
	PositionMiddle Position = "middle"
	PositionBottom Position = "bottom"
)

const dayKeyLayout = "2006-01-02"

// Enriched is a message plus its display flags. It is never stored; callers
// recompute it from the current store snapshot every pass.
type Enriched struct {
	models.Message

	IsFirst      bool
	IsLast       bool
	IsFirstInDay bool
	IsLastInDay  bool

	// IsRepeat: previous visible message has the same sender, any day.
	// IsRepeatInDay additionally requires the same local calendar day.
	IsRepeat      bool
	IsRepeatInDay bool

	GroupPosition Position
	DayKey        string

	IsFromCurrentUser bool
	IsEdited          bool
}

// Grouped is the full derived view for one thread.
type Grouped struct {
	ByDate   map[string][]Enriched
	DateKeys []string // ascending, matching message order
	// TotalCount counts the messages visible to the viewer.
	TotalCount int
	// LastMessage is the last message of the chronologically greatest day
	// bucket: the anchor for read receipts and scroll-to-bottom.
	LastMessage *Enriched
}

// DayKey buckets a timestamp by the viewer's local calendar day. Two UTC
// instants either side of the viewer's midnight land in different buckets
// even when UTC would put them in the same one.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(dayKeyLayout)
}

// Group derives the view for currentUserID in the given timezone. Messages
// the viewer deleted for themselves are excluded entirely; soft-deleted
// messages stay (they render as tombstones).
func Group(messages []models.Message, currentUserID string, loc *time.Location) Grouped {
	visible := make([]models.Message, 0, len(messages))
	for _, m := range messages {
		if m.DeletedFor(currentUserID) {
			continue
		}
		visible = append(visible, m)
	}

	out := Grouped{
		ByDate:     make(map[string][]Enriched, 4),
		TotalCount: len(visible),
	}

	for i, m := range visible {
		key := DayKey(m.CreatedAt, loc)

		e := Enriched{
			Message:           m,
			IsFirst:           i == 0,
			IsLast:            i == len(visible)-1,
			DayKey:            key,
			IsFromCurrentUser: m.SenderID == currentUserID,
			IsEdited:          m.IsEdited(),
		}

		prevMatches := false
		if i > 0 {
			prev := visible[i-1]
			e.IsRepeat = prev.SenderID == m.SenderID
			prevMatches = e.IsRepeat && DayKey(prev.CreatedAt, loc) == key
		}
		e.IsRepeatInDay = prevMatches

		nextMatches := false
		if i < len(visible)-1 {
			next := visible[i+1]
			nextMatches = next.SenderID == m.SenderID && DayKey(next.CreatedAt, loc) == key
		}

		switch {
		case prevMatches && nextMatches:
			e.GroupPosition = PositionMiddle
		case nextMatches:
			e.GroupPosition = PositionTop
		case prevMatches:
			e.GroupPosition = PositionBottom
		default:
			e.GroupPosition = PositionOnly
		}

		if _, exists := out.ByDate[key]; !exists {
			out.DateKeys = append(out.DateKeys, key)
		}
		e.IsFirstInDay = len(out.ByDate[key]) == 0
		out.ByDate[key] = append(out.ByDate[key], e)
	}

	// Close out the per-day last flags and pick the anchor.
	for _, key := range out.DateKeys {
		bucket := out.ByDate[key]
		bucket[len(bucket)-1].IsLastInDay = true
	}
	if n := len(out.DateKeys); n > 0 {
		bucket := out.ByDate[out.DateKeys[n-1]]
		last := bucket[len(bucket)-1]
		out.LastMessage = &last
	}

	return out
}
