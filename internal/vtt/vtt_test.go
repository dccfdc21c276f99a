// SPDX-License-Identifier: MIT

package vtt

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestTimestamp(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00.000"},
		{1.5, "00:00:01.500"},
		{59.999, "00:00:59.999"},
		{60, "00:01:00.000"},
		{3599.25, "00:59:59.250"},
		{3600, "01:00:00.000"},
		{7322.042, "02:02:02.042"},
		{-3, "00:00:00.000"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Timestamp(tc.seconds), "seconds=%v", tc.seconds)
	}
}

func TestFormat(t *testing.T) {
	got := Format([]Segment{
		{StartSec: 0, EndSec: 2.5, Text: "Hello there."},
		{StartSec: 2.5, EndSec: 4, Text: "Welcome to the show."},
	})

	want := "WEBVTT\n\n" +
		"1\n00:00:00.000 --> 00:00:02.500\nHello there.\n\n" +
		"2\n00:00:02.500 --> 00:00:04.000\nWelcome to the show.\n\n"

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("document mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatEmpty(t *testing.T) {
	assert.Equal(t, "WEBVTT\n\n", Format(nil))
}

func TestMergeOrdersBySpeakerStartTimes(t *testing.T) {
	got := Merge([]SpeakerTrack{
		{Speaker: "Alice", Segments: []Segment{
			{StartSec: 0, EndSec: 2, Text: "Hi Bob."},
			{StartSec: 5, EndSec: 7, Text: "Doing well."},
		}},
		{Speaker: "Bob", Segments: []Segment{
			{StartSec: 2, EndSec: 5, Text: "Hi Alice, how are you?"},
		}},
	})

	want := "WEBVTT\n\n" +
		"1\n00:00:00.000 --> 00:00:02.000\n<v Alice>Hi Bob.\n\n" +
		"2\n00:00:02.000 --> 00:00:05.000\n<v Bob>Hi Alice, how are you?\n\n" +
		"3\n00:00:05.000 --> 00:00:07.000\n<v Alice>Doing well.\n\n"

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("document mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeTiesBreakOnEndTime(t *testing.T) {
	got := Merge([]SpeakerTrack{
		{Speaker: "B", Segments: []Segment{{StartSec: 1, EndSec: 4, Text: "long"}}},
		{Speaker: "A", Segments: []Segment{{StartSec: 1, EndSec: 2, Text: "short"}}},
	})

	assert.Contains(t, got, "1\n00:00:01.000 --> 00:00:02.000\n<v A>short")
	assert.Contains(t, got, "2\n00:00:01.000 --> 00:00:04.000\n<v B>long")
}
