// SPDX-License-Identifier: MIT

// Package vtt renders transcription segments as WebVTT subtitle documents.
package vtt

import (
	"fmt"
	"sort"
	"strings"
)

// Segment is one transcribed utterance with timings in seconds from the start
// of the recording.
type Segment struct {
	StartSec float64
	EndSec   float64
	Text     string
}

// SpeakerTrack pairs a speaker name with that speaker's segments, used when
// merging per-recording transcripts into one room-level document.
type SpeakerTrack struct {
	Speaker  string
	Segments []Segment
}

// Format renders the segments as a WebVTT document. Cues are numbered from 1
// in input order.
func Format(segments []Segment) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for i, s := range segments {
		writeCue(&b, i+1, s, "")
	}
	return b.String()
}

// Merge combines per-speaker tracks into a single document, ordering cues by
// start time (then end time) and tagging each cue with a voice span.
func Merge(tracks []SpeakerTrack) string {
	type cue struct {
		seg     Segment
		speaker string
	}
	var cues []cue
	for _, t := range tracks {
		for _, s := range t.Segments {
			cues = append(cues, cue{seg: s, speaker: t.Speaker})
		}
	}
	sort.SliceStable(cues, func(i, j int) bool {
		if cues[i].seg.StartSec != cues[j].seg.StartSec {
			return cues[i].seg.StartSec < cues[j].seg.StartSec
		}
		return cues[i].seg.EndSec < cues[j].seg.EndSec
	})

	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for i, c := range cues {
		writeCue(&b, i+1, c.seg, c.speaker)
	}
	return b.String()
}

func writeCue(b *strings.Builder, ordinal int, s Segment, speaker string) {
	fmt.Fprintf(b, "%d\n", ordinal)
	fmt.Fprintf(b, "%s --> %s\n", Timestamp(s.StartSec), Timestamp(s.EndSec))
	if speaker != "" {
		fmt.Fprintf(b, "<v %s>%s\n\n", speaker, s.Text)
	} else {
		fmt.Fprintf(b, "%s\n\n", s.Text)
	}
}

// Timestamp formats seconds as a WebVTT HH:MM:SS.mmm timestamp. Negative
// inputs clamp to zero.
func Timestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(seconds*1000 + 0.5)
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}
