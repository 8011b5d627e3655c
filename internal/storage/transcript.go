package storage

import (
	"fmt"
	"time"
)

// TranscriptKey builds the object key for an archived generation transcript.
// Keys are partitioned by project and day so buckets stay browsable:
// transcripts/<project>/<YYYY/MM/DD>/<run>/<item>.json
func TranscriptKey(projectID, runID, itemID string, at time.Time) string {
	return fmt.Sprintf("transcripts/%s/%s/%s/%s.json",
		projectID, at.UTC().Format("2006/01/02"), runID, itemID)
}
