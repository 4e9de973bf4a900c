package gdrive

import (
	"time"

	"github.com/sirupsen/logrus"
)

// parseTime parses a Drive RFC 3339 date-time string into a unix time.
// input example: 2018-08-03T12:03:30.407Z
func parseTime(s string) int64 {
	t := new(time.Time)
	if err := t.UnmarshalText([]byte(s)); err != nil {
		logrus.WithError(err).WithField("value", s).Error("gdrive: can't parse modifiedTime")
		return 0
	}
	return t.Unix()
}
