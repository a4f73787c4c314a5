package cmn

import "time"

// ISO8601UTC is the sole wire/storage timestamp format. String ordering
// of `fetched_at` is only meaningful if every row uses one UTC
// representation, so no other form may reach storage: every writer goes
// through FormatTime, every reader through ParseTime.
const ISO8601UTC = "2006-01-02T15:04:05.000Z"

// Now returns the current instant truncated to millisecond precision in
// UTC, matching the precision persisted by FormatTime.
func Now() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

func FormatTime(t time.Time) string { return t.UTC().Format(ISO8601UTC) }

func ParseTime(s string) (time.Time, error) { return time.Parse(ISO8601UTC, s) }

func NowString() string { return FormatTime(Now()) }
