// Package chapters renders the chapter-annotated description consumed as
// the video host's upload description.
package chapters

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Bookmark is one timestamped range from the agenda page's "Bookmarks: [...]"
// literal. Times are milliseconds from the start of the video.
type Bookmark struct {
	AgendaItemID int
	TimeStart    int64
	TimeEnd      int64
}

// Item is one agenda item after joining bookmarks with titles: a title is
// always present (from the AgendaItemTitle DIVs), a bookmark may not be.
type Item struct {
	AgendaItemID int
	Title        string
	Bookmark     *Bookmark // nil if no matching bookmark was found
}

// HasTime reports whether this item has a timestamp to sort and render by.
func (i Item) HasTime() bool { return i.Bookmark != nil }

// Join attaches each item's matching bookmark (by AgendaItemID) and sorts
// ascending by TimeStart, with untimed items sorted last (stable so their
// original relative order survives).
func Join(titles map[int]string, bookmarks []Bookmark) []Item {
	byID := make(map[int]Bookmark, len(bookmarks))
	for _, b := range bookmarks {
		byID[b.AgendaItemID] = b
	}

	ids := make([]int, 0, len(titles))
	for id := range titles {
		ids = append(ids, id)
	}
	sort.Ints(ids) // deterministic base order before the stable time-sort below

	items := make([]Item, 0, len(ids))
	for _, id := range ids {
		item := Item{AgendaItemID: id, Title: titles[id]}
		if b, ok := byID[id]; ok {
			bCopy := b
			item.Bookmark = &bCopy
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch {
		case a.HasTime() && b.HasTime():
			return a.Bookmark.TimeStart < b.Bookmark.TimeStart
		case a.HasTime():
			return true
		case b.HasTime():
			return false
		default:
			return false
		}
	})
	return items
}

// Render produces the full chapter description document for a meeting:
// title line, blank line, "Chapters:" header, one "HH:MM:SS <title>" line
// per timestamped item, with a synthetic "00:00:00 Pre-meeting" line
// prepended whenever the first timestamped item doesn't already start at
// the origin (the external host requires the first chapter there).
func Render(meetingTitle, meetingDate string, items []Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s - %s\n\n", meetingTitle, FormatDate(meetingDate))
	b.WriteString("Chapters:\n")

	timed := make([]Item, 0, len(items))
	for _, item := range items {
		if item.HasTime() {
			timed = append(timed, item)
		}
	}

	if len(timed) > 0 && formatHMS(timed[0].Bookmark.TimeStart) != "00:00:00" {
		b.WriteString("00:00:00 Pre-meeting\n")
	}
	for _, item := range timed {
		fmt.Fprintf(&b, "%s %s\n", formatHMS(item.Bookmark.TimeStart), item.Title)
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

// FormatDate takes the meeting's stored date (e.g. "2025-06-05 19:00" or
// "2025/06/05"), keeps its first whitespace-delimited token, and turns any
// slashes into dashes. The upload worker reuses it so a published
// title's date matches the chapter header exactly.
func FormatDate(date string) string {
	token := strings.Fields(date)
	first := date
	if len(token) > 0 {
		first = token[0]
	}
	return strings.ReplaceAll(first, "/", "-")
}

// formatHMS renders milliseconds-from-start as HH:MM:SS.
func formatHMS(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	total := int64(d.Seconds())
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}
