package model

import "fmt"

// Job is a queue entry carrying only the meeting it names. The dedup key
// is derived, never stored separately, so it can never drift from the
// queue/meeting pair it describes.
type Job struct {
	MeetingID string
}

// JobID returns the deterministic identifier "<queue>-<meetingId>" used as
// the queue's dedup key.
func JobID(queue, meetingID string) string {
	return fmt.Sprintf("%s-%s", queue, meetingID)
}
