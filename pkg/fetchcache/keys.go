package fetchcache

import (
	"fmt"
	"time"
)

// HourKey buckets a URL by the hour of t: {flooredToHourMillis}:{url}. This
// bounds cache growth to one entry per URL per hour and lets
// GetLatestByURL find the newest copy via suffix match.
func HourKey(url string, t time.Time) string {
	return fmt.Sprintf("%d:%s", t.Truncate(time.Hour).UnixMilli(), url)
}

// SessionKey scopes a URL to a fetch session: {sessionID}:{url}.
func SessionKey(sessionID, url string) string {
	return sessionID + ":" + url
}
