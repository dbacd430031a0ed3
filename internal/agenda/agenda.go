// Package agenda fetches and parses a meeting's agenda page: a
// "Bookmarks: [...]" JSON literal plus repeated AgendaItem DIV blocks,
// joined by AgendaItemId.
package agenda

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/cityhall/meetingpipe/internal/chapters"
)

// Page is the parsed result of one agenda fetch.
type Page struct {
	HTML      string
	Bookmarks []chapters.Bookmark
	Titles    map[int]string // AgendaItemId -> title; a map, so document order is not kept
}

// Fetch retrieves the agenda HTML for meetingID from baseURL
// ("<baseURL>/Meeting.aspx?Id=<meetingId>&Agenda=Agenda&lang=English")
// and parses it.
func Fetch(ctx context.Context, client *http.Client, baseURL, meetingID string) (Page, error) {
	if client == nil {
		client = http.DefaultClient
	}
	url := fmt.Sprintf("%s/Meeting.aspx?Id=%s&Agenda=Agenda&lang=English", strings.TrimRight(baseURL, "/"), meetingID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Page{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("fetch agenda: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Page{}, fmt.Errorf("fetch agenda: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Page{}, fmt.Errorf("read agenda body: %w", err)
	}

	return Parse(string(body))
}

// Parse extracts bookmarks and titles from raw agenda HTML.
func Parse(html string) (Page, error) {
	bookmarks, err := ParseBookmarks(html)
	if err != nil {
		return Page{}, err
	}
	titles, err := ParseTitles(html)
	if err != nil {
		return Page{}, err
	}
	return Page{HTML: html, Bookmarks: bookmarks, Titles: titles}, nil
}

var bookmarksLiteral = regexp.MustCompile(`(?s)Bookmarks:\s*(\[.*?\])\s*[;,\n]`)

// rawBookmark mirrors the upstream wire shape:
// {AgendaItemId, TimeStart, TimeEnd} with times in milliseconds.
type rawBookmark struct {
	AgendaItemID int   `json:"AgendaItemId"`
	TimeStart    int64 `json:"TimeStart"`
	TimeEnd      int64 `json:"TimeEnd"`
}

// ParseBookmarks locates the "Bookmarks: [...]" literal embedded in the
// agenda page and decodes it as JSON. A page with no bookmarks literal at
// all yields an empty (not an error) result, since an agenda without any
// timestamped items is valid (all items sort last).
func ParseBookmarks(html string) ([]chapters.Bookmark, error) {
	match := bookmarksLiteral.FindStringSubmatch(html)
	if match == nil {
		return nil, nil
	}

	var raw []rawBookmark
	if err := json.Unmarshal([]byte(match[1]), &raw); err != nil {
		return nil, fmt.Errorf("decode bookmarks literal: %w", err)
	}

	out := make([]chapters.Bookmark, 0, len(raw))
	for _, r := range raw {
		out = append(out, chapters.Bookmark{
			AgendaItemID: r.AgendaItemID,
			TimeStart:    r.TimeStart,
			TimeEnd:      r.TimeEnd,
		})
	}
	return out, nil
}

var agendaItemClass = regexp.MustCompile(`^AgendaItem(\d+)$`)

// ParseTitles walks every <DIV class="AgendaItem AgendaItemN"> block and
// reads its nested AgendaItemTitle anchor text, keyed by the numeric N
// (the numeric AgendaItemId the class suffix carries).
func ParseTitles(html string) (map[int]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse agenda HTML: %w", err)
	}

	titles := make(map[int]string)
	doc.Find("div.AgendaItem").Each(func(_ int, block *goquery.Selection) {
		id, ok := agendaItemID(block)
		if !ok {
			return
		}
		title := strings.TrimSpace(block.Find("div.AgendaItemTitle a").First().Text())
		if title == "" {
			return
		}
		titles[id] = title
	})
	return titles, nil
}

func agendaItemID(block *goquery.Selection) (int, bool) {
	classes, ok := block.Attr("class")
	if !ok {
		return 0, false
	}
	for _, class := range strings.Fields(classes) {
		if m := agendaItemClass.FindStringSubmatch(class); m != nil {
			id, err := strconv.Atoi(m[1])
			if err != nil {
				return 0, false
			}
			return id, true
		}
	}
	return 0, false
}
