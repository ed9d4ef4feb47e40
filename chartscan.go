// Package chartscan parses Clone Hero family rhythm-game charts into a
// normalized, fully-timed track representation and computes a
// content-addressed, score-sensitive hash per playable track.
//
// Two on-disk encodings are supported: the bracketed .chart text format and
// Standard MIDI .mid files. Both lower into one neutral event stream before
// a shared normalization pipeline applies tempo timing, sustain trimming,
// modifier resolution, HOPO resolution, chord snapping, and overlap repair,
// so the final note stream is reproducible regardless of source format.
//
// Basic usage:
//
//	chart, err := chartscan.ParseChart(data, chartscan.FormatChart, chartscan.DefaultModifiers())
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	for _, track := range chart.Tracks {
//		hash, _, err := chartscan.HashTrack(chart, track.Instrument, track.Difficulty)
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Printf("%s %s: %s\n", track.Difficulty, track.Instrument, hash)
//	}
//
//	issues := chartscan.FindIssues(chart, 0, nil)
//
// Parsing is a pure function of (bytes, format, modifiers): no I/O, no
// shared state, and byte-identical output across runs. Callers can fan out
// over independent charts or tracks freely.
package chartscan

import "fmt"

// ParseChart parses raw chart bytes in the given format and runs the full
// normalization pipeline. Errors are fail-closed: structurally broken input
// aborts with a descriptive error and partial output is never returned.
func ParseChart(data []byte, format Format, mods IniChartModifiers) (*ParsedChart, error) {
	var raw *rawChart
	switch format {
	case FormatChart:
		text, err := DecodeText(data)
		if err != nil {
			return nil, err
		}
		raw, err = parseChartText(text)
		if err != nil {
			return nil, err
		}
	case FormatMid:
		var err error
		raw, err = parseMidi(data, mods)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown chart format %q", format)
	}

	return normalizeChart(raw, mods), nil
}

// HashAllTracks computes the hash for every track in the chart, keyed by
// track identity.
func HashAllTracks(chart *ParsedChart) (map[TrackID]string, error) {
	hashes := make(map[TrackID]string, len(chart.Tracks))
	for _, track := range chart.Tracks {
		hash, _, err := HashTrack(chart, track.Instrument, track.Difficulty)
		if err != nil {
			return nil, err
		}
		hashes[TrackID{Instrument: track.Instrument, Difficulty: track.Difficulty}] = hash
	}
	return hashes, nil
}
