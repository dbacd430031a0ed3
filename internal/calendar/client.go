// Package calendar is the HTTP client for the external meetings
// calendar: a single POST endpoint returning the meetings in a date
// range.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Meeting is one element of the calendar API's response, using the field
// names the upstream service returns.
type Meeting struct {
	ID        string `json:"ID"`
	Name      string `json:"MeetingName"`
	StartDate string `json:"StartDate"`
	HasVideo  bool   `json:"HasVideo"`
}

type requestBody struct {
	CalendarStartDate string `json:"calendarStartDate"`
	CalendarEndDate   string `json:"calendarEndDate"`
}

type responseBody struct {
	D []Meeting `json:"d"`
}

// Client talks to the calendar API's GetCalendarMeetings endpoint.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTPClient: &http.Client{Timeout: 30 * time.Second}}
}

// GetCalendarMeetings fetches all meetings whose scheduled date falls in
// [start, end), formatted with their already-applied UTC offset.
func (c *Client) GetCalendarMeetings(ctx context.Context, start, end time.Time) ([]Meeting, error) {
	payload, err := json.Marshal(requestBody{
		CalendarStartDate: start.Format(time.RFC3339),
		CalendarEndDate:   end.Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("encode calendar request: %w", err)
	}

	url := c.BaseURL + "/MeetingsCalendarView.aspx/GetCalendarMeetings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calendar request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendar request: unexpected status %d", resp.StatusCode)
	}

	var decoded responseBody
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode calendar response: %w", err)
	}
	return decoded.D, nil
}
