package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ReplyStatus is the first word of a device reply line
type ReplyStatus int

const (
	ReplyOK       ReplyStatus = iota // every record applied
	ReplyChecksum                    // some records failed verification and were skipped
	ReplyBad                         // a structural error stopped the frame
)

var replyWords = [...]string{
	ReplyOK:       "ok",
	ReplyChecksum: "crc",
	ReplyBad:      "bad",
}

func (s ReplyStatus) String() string {
	if int(s) < len(replyWords) {
		return replyWords[s]
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Reply is the device's answer to one frame or segment line.
//
//	ok <applied>
//	crc <applied> <i,j,...>
//	bad <applied> <index> <reason>
type Reply struct {
	Status  ReplyStatus
	Applied int
	Indices []int  // mismatched record indices, ReplyChecksum only
	Index   int    // failing record index, ReplyBad only
	Reason  string // single word, ReplyBad only
}

// String renders the reply line without terminator
func (r Reply) String() string {
	switch r.Status {
	case ReplyChecksum:
		idx := make([]string, len(r.Indices))
		for i, v := range r.Indices {
			idx[i] = strconv.Itoa(v)
		}
		return fmt.Sprintf("%s %d %s", r.Status, r.Applied, strings.Join(idx, ","))
	case ReplyBad:
		reason := r.Reason
		if reason == "" {
			reason = "error"
		}
		return fmt.Sprintf("%s %d %d %s", r.Status, r.Applied, r.Index, reason)
	default:
		return fmt.Sprintf("%s %d", r.Status, r.Applied)
	}
}

// ParseReply parses one reply line. Surrounding whitespace is ignored
func ParseReply(line string) (Reply, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Reply{}, fmt.Errorf("%w: reply %q", ErrTruncatedFrame, line)
	}

	applied, err := strconv.Atoi(fields[1])
	if err != nil || applied < 0 {
		return Reply{}, fmt.Errorf("%w: applied count %q", ErrInvalidCharacter, fields[1])
	}

	switch fields[0] {
	case "ok":
		return Reply{Status: ReplyOK, Applied: applied}, nil

	case "crc":
		if len(fields) != 3 {
			return Reply{}, fmt.Errorf("%w: crc reply %q", ErrTruncatedFrame, line)
		}
		var indices []int
		for _, s := range strings.Split(fields[2], ",") {
			v, err := strconv.Atoi(s)
			if err != nil || v < 0 {
				return Reply{}, fmt.Errorf("%w: record index %q", ErrInvalidCharacter, s)
			}
			indices = append(indices, v)
		}
		return Reply{Status: ReplyChecksum, Applied: applied, Indices: indices}, nil

	case "bad":
		if len(fields) < 4 {
			return Reply{}, fmt.Errorf("%w: bad reply %q", ErrTruncatedFrame, line)
		}
		index, err := strconv.Atoi(fields[2])
		if err != nil || index < 0 {
			return Reply{}, fmt.Errorf("%w: record index %q", ErrInvalidCharacter, fields[2])
		}
		return Reply{Status: ReplyBad, Applied: applied, Index: index, Reason: fields[3]}, nil

	default:
		return Reply{}, fmt.Errorf("%w: reply status %q", ErrInvalidArgument, fields[0])
	}
}

// Reason maps a decode error to the single word used in bad replies
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCharacter):
		return "invalid-character"
	case errors.Is(err, ErrTruncatedFrame):
		return "truncated"
	case errors.Is(err, ErrOutOfRange):
		return "out-of-range"
	case errors.Is(err, ErrFieldOverflow):
		return "overflow"
	case errors.Is(err, ErrOversizedRecord):
		return "oversized"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid-argument"
	case errors.Is(err, ErrChecksumMismatch):
		return "checksum"
	default:
		return "error"
	}
}
