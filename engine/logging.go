package impl

import "github.com/sirupsen/logrus"

// log is the package-wide logger, overridable via WithLogger. It
// defaults to logrus' standard logger so the engine is silent-by-default
// at Info level, matching the rest of the module's ambient logging.
var log logrus.FieldLogger = logrus.StandardLogger()

// fatalf reports a violated internal invariant. These are programmer
// errors in the engine itself, not caller mistakes, so they are fatal
// rather than returned as an error value — mirroring how the rest of
// the module treats broken invariants as unrecoverable.
func fatalf(format string, args ...interface{}) {
	log.Fatalf(format, args...)
}
