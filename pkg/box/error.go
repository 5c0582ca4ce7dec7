package box

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidData        = errors.New("invalid data")
	ErrInvalidHeader      = errors.New("invalid box header")
	ErrUnsupportedVersion = errors.New("unsupported version")
	ErrBoxNotFound        = errors.New("box not found")
	ErrEntryNotFound      = errors.New("entry not found")
	ErrTrakNotFound       = errors.New("trak not found")
)

// Error adds the box, track and sample a failure belongs to.
type Error struct {
	Op      string
	Type    BoxType
	TrackID uint32
	Sample  uint64
	Err     error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Op)
	if e.Type != (BoxType{}) {
		sb.WriteByte(' ')
		sb.WriteString(e.Type.String())
	}
	if e.TrackID != 0 {
		sb.WriteString(" track=")
		sb.WriteString(strconv.FormatUint(uint64(e.TrackID), 10))
	}
	if e.Sample != 0 {
		sb.WriteString(" sample=")
		sb.WriteString(strconv.FormatUint(e.Sample, 10))
	}
	sb.WriteString(": ")
	sb.WriteString(e.Err.Error())
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func decodeErr(t BoxType, err error) error {
	return &Error{Op: "decode", Type: t, Err: err}
}

func missing(child BoxType) error {
	return fmt.Errorf("%w: missing %s", ErrBoxNotFound, child)
}
