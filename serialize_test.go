package chartscan

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestSerializedTrackLayout(t *testing.T) {
	chart := parseChartOrFail(t, minimalChartData, DefaultModifiers())
	hash, data, err := HashTrack(chart, InstrumentGuitar, DifficultyExpert)
	if err != nil {
		t.Fatalf("HashTrack failed: %v", err)
	}

	if !bytes.Equal(data[:4], []byte("CHNF")) {
		t.Errorf("Expected CHNF magic, got % X", data[:4])
	}
	if got := binary.LittleEndian.Uint32(data[4:8]); got != 20240320 {
		t.Errorf("Expected version 20240320, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(data[8:12]); got != 192 {
		t.Errorf("Expected resolution 192, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(data[12:16]); got != 1 {
		t.Errorf("Expected 1 tempo record, got %d", got)
	}
	// tempo record: tick then bpm
	if got := binary.LittleEndian.Uint64(data[16:24]); got != 0 {
		t.Errorf("Expected tempo at tick 0, got %d", got)
	}

	if len(hash) != 43 {
		t.Errorf("Expected a 43-character base64url digest, got %d (%s)", len(hash), hash)
	}
}

func TestHashMissingTrack(t *testing.T) {
	chart := parseChartOrFail(t, minimalChartData, DefaultModifiers())
	if _, _, err := HashTrack(chart, InstrumentDrums, DifficultyExpert); err == nil {
		t.Error("Expected an error for a missing track")
	}
}

func TestHashDeterminism(t *testing.T) {
	a := parseChartOrFail(t, validChartData, DefaultModifiers())
	b := parseChartOrFail(t, validChartData, DefaultModifiers())

	for _, track := range a.Tracks {
		hashA, dataA, err := HashTrack(a, track.Instrument, track.Difficulty)
		if err != nil {
			t.Fatalf("HashTrack failed: %v", err)
		}
		hashB, dataB, err := HashTrack(b, track.Instrument, track.Difficulty)
		if err != nil {
			t.Fatalf("HashTrack failed: %v", err)
		}
		if hashA != hashB || !bytes.Equal(dataA, dataB) {
			t.Errorf("Hash of %s %s is not deterministic", track.Difficulty, track.Instrument)
		}
	}
}

func hashOf(t *testing.T, text string) string {
	t.Helper()
	chart := parseChartOrFail(t, text, DefaultModifiers())
	hash, _, err := HashTrack(chart, InstrumentGuitar, DifficultyExpert)
	if err != nil {
		t.Fatalf("HashTrack failed: %v", err)
	}
	return hash
}

func TestHashSensitivity(t *testing.T) {
	base := buildFiveFretChart(192, "  0 = N 0 0\n  192 = N 1 96\n  0 = S 2 100")

	changed := []struct {
		name string
		text string
	}{
		{"note tick", buildFiveFretChart(192, "  0 = N 0 0\n  193 = N 1 96\n  0 = S 2 100")},
		{"note length", buildFiveFretChart(192, "  0 = N 0 0\n  192 = N 1 97\n  0 = S 2 100")},
		{"note color", buildFiveFretChart(192, "  0 = N 0 0\n  192 = N 2 96\n  0 = S 2 100")},
		{"note flags", buildFiveFretChart(192, "  0 = N 0 0\n  0 = N 5 0\n  192 = N 1 96\n  0 = S 2 100")},
		{"phrase length", buildFiveFretChart(192, "  0 = N 0 0\n  192 = N 1 96\n  0 = S 2 200")},
	}
	baseHash := hashOf(t, base)
	for _, c := range changed {
		if hashOf(t, c.text) == baseHash {
			t.Errorf("Changing %s should change the hash", c.name)
		}
	}

	// a kept tempo participates in the hash
	withTempo := `[Song]
{
  Resolution = 192
}
[SyncTrack]
{
  0 = B 140000
}
[ExpertSingle]
{
  0 = N 0 0
  192 = N 1 96
  0 = S 2 100
}`
	if hashOf(t, withTempo) == baseHash {
		t.Error("Changing the tempo should change the hash")
	}
}

func TestHashIgnoresShadowedMarkers(t *testing.T) {
	// only the last tempo defined at a tick survives serialization
	a := `[Song]
{
  Resolution = 192
}
[SyncTrack]
{
  0 = B 100000
  0 = B 120000
}
[ExpertSingle]
{
  0 = N 0 0
}`
	b := `[Song]
{
  Resolution = 192
}
[SyncTrack]
{
  0 = B 110000
  0 = B 120000
}
[ExpertSingle]
{
  0 = N 0 0
}`
	if hashOf(t, a) != hashOf(t, b) {
		t.Error("A shadowed tempo marker must not affect the hash")
	}
}

func TestHashIgnoresEmptyPhrases(t *testing.T) {
	withEmpty := buildFiveFretChart(192, "  0 = N 0 0\n  960 = S 2 100")
	without := buildFiveFretChart(192, "  0 = N 0 0")
	if hashOf(t, withEmpty) != hashOf(t, without) {
		t.Error("A phrase that prunes to empty must not affect the hash")
	}
}

// A .chart and a .mid expressing the same notes normalize to the same
// serialized track. At resolution 192 the default hopo windows of the two
// formats coincide, and the 10-tick .mid sustains collapse under the cutoff
// to match the .chart's zero lengths.
func TestFormatParity(t *testing.T) {
	chartText := buildFiveFretChart(192, "  0 = N 0 0\n  192 = N 1 0\n  0 = S 2 193")

	guitar := []midiEvent{{0, trackNameEvent("PART GUITAR")}}
	guitar = append(guitar,
		midiEvent{0, noteOnEvent(0, 96, 100)},
		midiEvent{0, noteOnEvent(0, 116, 100)},
		midiEvent{10, noteOffEvent(0, 96)},
		midiEvent{182, noteOnEvent(0, 97, 100)},
		midiEvent{1, noteOffEvent(0, 116)},
		midiEvent{9, noteOffEvent(0, 97)},
	)
	midData := buildSMF(1, 192, syncTrack(), guitar)

	fromChart := hashOf(t, chartText)

	midChart := parseMidOrFail(t, midData, DefaultModifiers())
	fromMid, _, err := HashTrack(midChart, InstrumentGuitar, DifficultyExpert)
	if err != nil {
		t.Fatalf("HashTrack failed: %v", err)
	}

	if fromChart != fromMid {
		t.Errorf("Expected format parity, got %s from .chart and %s from .mid", fromChart, fromMid)
	}
}

func TestHashAllTracks(t *testing.T) {
	chart := parseChartOrFail(t, validChartData, DefaultModifiers())
	hashes, err := HashAllTracks(chart)
	if err != nil {
		t.Fatalf("HashAllTracks failed: %v", err)
	}
	if len(hashes) != len(chart.Tracks) {
		t.Errorf("Expected %d hashes, got %d", len(chart.Tracks), len(hashes))
	}
	for id, hash := range hashes {
		if hash == "" {
			t.Errorf("Empty hash for %v", id)
		}
	}
}
