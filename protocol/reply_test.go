package protocol

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
)

func TestReplyString(t *testing.T) {
	testCases := []struct {
		reply Reply
		want  string
	}{
		{Reply{Status: ReplyOK, Applied: 16}, "ok 16"},
		{Reply{Status: ReplyChecksum, Applied: 14, Indices: []int{3, 7}}, "crc 14 3,7"},
		{Reply{Status: ReplyBad, Applied: 5, Index: 5, Reason: "truncated"}, "bad 5 5 truncated"},
		{Reply{Status: ReplyBad, Applied: 0, Index: 0}, "bad 0 0 error"},
	}

	for _, tc := range testCases {
		if got := tc.reply.String(); got != tc.want {
			t.Errorf("expected %q, got %q", tc.want, got)
		}
	}
}

func TestParseReply(t *testing.T) {
	testCases := []struct {
		line string
		want Reply
	}{
		{"ok 256", Reply{Status: ReplyOK, Applied: 256}},
		{"  ok 0\r", Reply{Status: ReplyOK}},
		{"crc 14 3,7", Reply{Status: ReplyChecksum, Applied: 14, Indices: []int{3, 7}}},
		{"bad 2 2 out-of-range", Reply{Status: ReplyBad, Applied: 2, Index: 2, Reason: "out-of-range"}},
	}

	for _, tc := range testCases {
		got, err := ParseReply(tc.line)
		if err != nil {
			t.Errorf("ParseReply(%q) failed: %v", tc.line, err)
			continue
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("ParseReply(%q) = %+v, want %+v", tc.line, got, tc.want)
		}
		if again, _ := ParseReply(got.String()); !reflect.DeepEqual(again, got) {
			t.Errorf("reply %+v does not survive String/ParseReply", got)
		}
	}
}

func TestParseReplyErrors(t *testing.T) {
	testCases := []struct {
		line string
		want error
	}{
		{"", ErrTruncatedFrame},
		{"ok", ErrTruncatedFrame},
		{"ok x", ErrInvalidCharacter},
		{"ok -1", ErrInvalidCharacter},
		{"crc 3", ErrTruncatedFrame},
		{"crc 3 1,a", ErrInvalidCharacter},
		{"bad 1 1", ErrTruncatedFrame},
		{"bad 1 x truncated", ErrInvalidCharacter},
		{"hello 1", ErrInvalidArgument},
	}

	for _, tc := range testCases {
		if _, err := ParseReply(tc.line); !errors.Is(err, tc.want) {
			t.Errorf("ParseReply(%q): expected %v, got %v", tc.line, tc.want, err)
		}
	}
}

func TestReason(t *testing.T) {
	testCases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("record 3: %w", ErrTruncatedFrame), "truncated"},
		{ErrInvalidCharacter, "invalid-character"},
		{ErrOutOfRange, "out-of-range"},
		{ErrFieldOverflow, "overflow"},
		{ErrOversizedRecord, "oversized"},
		{ErrInvalidArgument, "invalid-argument"},
		{ErrChecksumMismatch, "checksum"},
		{errors.New("boom"), "error"},
	}

	for _, tc := range testCases {
		if got := Reason(tc.err); got != tc.want {
			t.Errorf("Reason(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
