package simconnect

import (
	"errors"

	"fsrewire/pkg/textfile"
)

var (
	// ErrNoHomeDir and ErrConfigNotFound are fatal: there is nothing to reconcile.
	ErrNoHomeDir      = errors.New("unable to determine user home directory")
	ErrConfigNotFound = errors.New("unable to determine SimConnect.xml path")

	ErrParse     = errors.New("parse SimConnect.xml")
	ErrSerialize = errors.New("serialize SimConnect.xml")
)

// ErrorKind classifies a reconcile failure for the caller.
type ErrorKind string

const (
	KindNone      ErrorKind = ""
	KindPath      ErrorKind = "path"
	KindRead      ErrorKind = "read"
	KindDecode    ErrorKind = "decode"
	KindParse     ErrorKind = "parse"
	KindSerialize ErrorKind = "serialize"
	KindWrite     ErrorKind = "write"
	KindUnknown   ErrorKind = "unknown"
)

// Kind returns the class of err.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case IsFatal(err):
		return KindPath
	case errors.Is(err, textfile.ErrRead):
		return KindRead
	case errors.Is(err, textfile.ErrDecode):
		return KindDecode
	case errors.Is(err, ErrParse):
		return KindParse
	case errors.Is(err, ErrSerialize):
		return KindSerialize
	case errors.Is(err, textfile.ErrWrite):
		return KindWrite
	default:
		return KindUnknown
	}
}

// IsFatal reports whether err is a precondition failure of path resolution.
func IsFatal(err error) bool {
	return errors.Is(err, ErrNoHomeDir) || errors.Is(err, ErrConfigNotFound)
}
