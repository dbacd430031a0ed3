package chapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender_SyntheticPreMeetingLine(t *testing.T) {
	titles := map[int]string{1: "Item A", 2: "Item B", 3: "Item C"}
	bookmarks := []Bookmark{
		{AgendaItemID: 1, TimeStart: 5000},
		{AgendaItemID: 2, TimeStart: 65000},
		{AgendaItemID: 3, TimeStart: 3665000},
	}

	items := Join(titles, bookmarks)
	got := Render("City Commission - Regular", "2025-06-05 19:00", items)

	want := "City Commission - Regular - 2025-06-05\n\n" +
		"Chapters:\n" +
		"00:00:00 Pre-meeting\n" +
		"00:00:05 Item A\n" +
		"00:01:05 Item B\n" +
		"01:01:05 Item C\n"

	assert.Equal(t, want, got)
}

func TestRender_NoSyntheticLineWhenFirstIsOrigin(t *testing.T) {
	titles := map[int]string{1: "Call to Order"}
	bookmarks := []Bookmark{{AgendaItemID: 1, TimeStart: 0}}

	items := Join(titles, bookmarks)
	got := Render("Budget Workshop", "2025/01/02", items)

	want := "Budget Workshop - 2025-01-02\n\n" +
		"Chapters:\n" +
		"00:00:00 Call to Order\n"
	assert.Equal(t, want, got)
}

func TestJoin_UntimedItemsSortLast(t *testing.T) {
	titles := map[int]string{1: "Untimed", 2: "Timed B", 3: "Timed A"}
	bookmarks := []Bookmark{
		{AgendaItemID: 2, TimeStart: 2000},
		{AgendaItemID: 3, TimeStart: 1000},
	}

	items := Join(titles, bookmarks)
	assert.Equal(t, "Timed A", items[0].Title)
	assert.Equal(t, "Timed B", items[1].Title)
	assert.Equal(t, "Untimed", items[2].Title)
	assert.False(t, items[2].HasTime())
}

func TestJoin_MissingBookmarkLeavesItemUntimed(t *testing.T) {
	titles := map[int]string{7: "No bookmark for me"}
	items := Join(titles, nil)
	assert.Len(t, items, 1)
	assert.False(t, items[0].HasTime())
}

func TestRender_NoTimedItemsOmitsPreMeetingLine(t *testing.T) {
	titles := map[int]string{1: "Only untimed"}
	items := Join(titles, nil)
	got := Render("Workshop", "2025-02-02", items)
	want := "Workshop - 2025-02-02\n\nChapters:\n"
	assert.Equal(t, want, got)
}
