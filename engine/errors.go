package impl

import (
	"github.com/pkg/errors"

	interf "github.com/pagewright/pagecache/interfaces"
)

// wrap attaches msg as context to err using pkg/errors, preserving err
// for errors.Is/As against the interf sentinels. A nil err passes
// through unchanged.
func wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, msg)
}

func wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, format, args...)
}

// errInvalidHandle is returned for any Handle the engine doesn't
// recognize, including ones that were already PermanentClose'd.
var errInvalidHandle = errors.Wrap(interf.ErrNoSuchHandle, "unknown or closed handle")
