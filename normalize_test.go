package chartscan

import (
	"fmt"
	"testing"
)

// buildFiveFretChart renders note lines into a minimal expert guitar chart.
func buildFiveFretChart(resolution int, lines string) string {
	return fmt.Sprintf(`[Song]
{
  Resolution = %d
}
[SyncTrack]
{
  0 = B 120000
}
[ExpertSingle]
{
%s
}`, resolution, lines)
}

func expertGuitar(t *testing.T, chart *ParsedChart) *Track {
	t.Helper()
	track := chart.GetTrack(InstrumentGuitar, DifficultyExpert)
	if track == nil {
		t.Fatal("Expected an expert guitar track")
	}
	return track
}

// The reference scenario: two notes a full beat apart at 120 BPM with
// resolution 192. The gap exceeds the 65-tick hopo window, so both strum.
func TestTimedNotesFullBeatApart(t *testing.T) {
	text := buildFiveFretChart(192, "  0 = N 0 0\n  192 = N 1 96")
	chart := parseChartOrFail(t, text, DefaultModifiers())
	track := expertGuitar(t, chart)

	if len(track.NoteEventGroups) != 2 {
		t.Fatalf("Expected 2 note groups, got %d", len(track.NoteEventGroups))
	}
	first, second := track.NoteEventGroups[0][0], track.NoteEventGroups[1][0]

	if first.MsTime != 0 {
		t.Errorf("Expected first note at 0ms, got %v", first.MsTime)
	}
	if second.MsTime != 500 {
		t.Errorf("Expected second note at 500ms, got %v", second.MsTime)
	}
	if first.Type != NoteGreen || first.Flags != FlagStrum || first.Length != 0 {
		t.Errorf("Unexpected first note: %+v", first)
	}
	if second.Type != NoteRed || second.Flags != FlagStrum {
		t.Errorf("Expected second note to strum (gap 192 > hopo window 65), got %+v", second)
	}
}

func TestNaturalHopoResolution(t *testing.T) {
	cases := []struct {
		name  string
		lines string
		want  []NoteFlags
	}{
		{
			// same color 100 ticks later stays a strum
			"same color repeats",
			"  0 = N 0 0\n  100 = N 0 0",
			[]NoteFlags{FlagStrum, FlagStrum},
		},
		{
			// different single color inside the 65-tick window hammers on
			"different color in window",
			"  0 = N 0 0\n  64 = N 1 0",
			[]NoteFlags{FlagStrum, FlagHopo},
		},
		{
			"different color outside window",
			"  0 = N 0 0\n  66 = N 1 0",
			[]NoteFlags{FlagStrum, FlagStrum},
		},
		{
			// chords never hammer on naturally
			"chord in window",
			"  0 = N 0 0\n  64 = N 1 0\n  64 = N 2 0",
			[]NoteFlags{FlagStrum, FlagStrum, FlagStrum},
		},
		{
			// tap force wins over everything
			"tap force",
			"  0 = N 0 0\n  64 = N 1 0\n  64 = N 6 0",
			[]NoteFlags{FlagStrum, FlagTap},
		},
		{
			// unnatural force flips a would-be strum to hopo
			"forced hopo",
			"  0 = N 0 0\n  100 = N 0 0\n  100 = N 5 0",
			[]NoteFlags{FlagStrum, FlagHopo},
		},
		{
			// unnatural force flips a natural hopo back to strum
			"forced strum",
			"  0 = N 0 0\n  64 = N 1 0\n  64 = N 5 0",
			[]NoteFlags{FlagStrum, FlagStrum},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			chart := parseChartOrFail(t, buildFiveFretChart(192, c.lines), DefaultModifiers())
			track := expertGuitar(t, chart)

			var got []NoteFlags
			for _, group := range track.NoteEventGroups {
				for _, n := range group {
					got = append(got, n.Flags)
				}
			}
			if len(got) != len(c.want) {
				t.Fatalf("Expected %d notes, got %d", len(c.want), len(got))
			}
			for i := range got {
				if got[i] != c.want[i] {
					t.Errorf("Note %d: expected flags %d, got %d", i, c.want[i], got[i])
				}
			}
		})
	}
}

func TestHopoFrequencyModifier(t *testing.T) {
	mods := DefaultModifiers()
	mods.HopoFrequency = 100

	text := buildFiveFretChart(192, "  0 = N 0 0\n  100 = N 1 0")
	chart := parseChartOrFail(t, text, mods)
	track := expertGuitar(t, chart)

	if got := track.NoteEventGroups[1][0].Flags; got != FlagHopo {
		t.Errorf("Expected hopo with widened window, got flags %d", got)
	}
}

func TestChartSustainsKeptByDefault(t *testing.T) {
	text := buildFiveFretChart(192, "  0 = N 0 12\n  192 = N 1 0")
	chart := parseChartOrFail(t, text, DefaultModifiers())
	track := expertGuitar(t, chart)

	if got := track.NoteEventGroups[0][0].Length; got != 12 {
		t.Errorf(".chart sustains should survive without a cutoff, got length %d", got)
	}
}

func TestSustainCutoffModifier(t *testing.T) {
	mods := DefaultModifiers()
	mods.SustainCutoffThreshold = 64

	text := buildFiveFretChart(192, "  0 = N 0 64\n  192 = N 1 65")
	chart := parseChartOrFail(t, text, mods)
	track := expertGuitar(t, chart)

	if got := track.NoteEventGroups[0][0].Length; got != 0 {
		t.Errorf("Expected sustain at the threshold to collapse, got length %d", got)
	}
	if got := track.NoteEventGroups[1][0].Length; got != 65 {
		t.Errorf("Expected sustain past the threshold to survive, got length %d", got)
	}
}

// Chord snap with threshold 10: groups at {100, 105, 120} merge into
// {100, 120}, and the merged note inherits the kept group's strum state.
func TestChordSnap(t *testing.T) {
	mods := DefaultModifiers()
	mods.ChordSnapThreshold = 10

	text := buildFiveFretChart(192, "  100 = N 0 0\n  105 = N 1 0\n  120 = N 2 0")
	chart := parseChartOrFail(t, text, mods)
	track := expertGuitar(t, chart)

	if len(track.NoteEventGroups) != 2 {
		t.Fatalf("Expected 2 groups after snapping, got %d", len(track.NoteEventGroups))
	}
	merged := track.NoteEventGroups[0]
	if len(merged) != 2 {
		t.Fatalf("Expected merged chord of 2 notes, got %d", len(merged))
	}
	for _, n := range merged {
		if n.Tick != 100 {
			t.Errorf("Merged note should adopt tick 100, got %d", n.Tick)
		}
		if n.Flags != FlagStrum {
			t.Errorf("Merged note should inherit the kept group's strum, got flags %d", n.Flags)
		}
	}
	if track.NoteEventGroups[1][0].Tick != 120 {
		t.Errorf("Group at 120 should stay, got tick %d", track.NoteEventGroups[1][0].Tick)
	}
}

func TestChordSnapAdoptsShortestLength(t *testing.T) {
	mods := DefaultModifiers()
	mods.ChordSnapThreshold = 10

	text := buildFiveFretChart(192, "  100 = N 0 96\n  105 = N 1 48")
	chart := parseChartOrFail(t, text, mods)
	track := expertGuitar(t, chart)

	if len(track.NoteEventGroups) != 1 {
		t.Fatalf("Expected 1 group after snapping, got %d", len(track.NoteEventGroups))
	}
	for _, n := range track.NoteEventGroups[0] {
		if n.Length != 48 {
			t.Errorf("Merged chord should adopt the shortest length 48, got %d", n.Length)
		}
	}
}

func TestOverlapRepair(t *testing.T) {
	// duplicate note at one tick keeps the longest; a sustain reaching past
	// the next same-color note is truncated and the tail carried over
	text := buildFiveFretChart(192, "  0 = N 0 50\n  0 = N 0 10\n  100 = N 0 20")
	chart := parseChartOrFail(t, text, DefaultModifiers())
	track := expertGuitar(t, chart)

	if len(track.NoteEventGroups) != 2 {
		t.Fatalf("Expected 2 groups, got %d", len(track.NoteEventGroups))
	}
	if len(track.NoteEventGroups[0]) != 1 {
		t.Fatalf("Expected duplicate green note to be removed")
	}
	// no overlap here: 0+50 < 100, lengths untouched
	if got := track.NoteEventGroups[0][0].Length; got != 50 {
		t.Errorf("Expected kept duplicate to have length 50, got %d", got)
	}

	text = buildFiveFretChart(192, "  0 = N 0 150\n  100 = N 0 20")
	chart = parseChartOrFail(t, text, DefaultModifiers())
	track = expertGuitar(t, chart)

	first := track.NoteEventGroups[0][0]
	second := track.NoteEventGroups[1][0]
	if first.Length != 100 {
		t.Errorf("Expected earlier sustain truncated to 100, got %d", first.Length)
	}
	if second.Length != 50 {
		t.Errorf("Expected later sustain extended to cover the tail (50), got %d", second.Length)
	}
}

func TestPhraseOverlapRepair(t *testing.T) {
	text := buildFiveFretChart(192,
		"  0 = N 0 0\n  100 = N 1 0\n  200 = N 2 0\n  0 = S 2 150\n  100 = S 2 150")
	chart := parseChartOrFail(t, text, DefaultModifiers())
	track := expertGuitar(t, chart)

	if len(track.StarPowerSections) != 2 {
		t.Fatalf("Expected 2 star power phrases, got %d", len(track.StarPowerSections))
	}
	if got := track.StarPowerSections[0].Length; got != 100 {
		t.Errorf("Expected first phrase truncated to 100, got %d", got)
	}
	if got := track.StarPowerSections[1].Length; got != 150 {
		t.Errorf("Expected second phrase to keep length 150, got %d", got)
	}
}

func TestNormalizationRepeatable(t *testing.T) {
	mods := DefaultModifiers()
	mods.ChordSnapThreshold = 10

	text := buildFiveFretChart(192,
		"  0 = N 0 150\n  100 = N 0 20\n  105 = N 1 30\n  200 = N 2 0\n  0 = S 2 300")
	first := parseChartOrFail(t, text, mods)
	second := parseChartOrFail(t, text, mods)

	a, _, err := HashTrack(first, InstrumentGuitar, DifficultyExpert)
	if err != nil {
		t.Fatalf("HashTrack failed: %v", err)
	}
	b, _, err := HashTrack(second, InstrumentGuitar, DifficultyExpert)
	if err != nil {
		t.Fatalf("HashTrack failed: %v", err)
	}
	if a != b {
		t.Errorf("Two parses of the same input produced different hashes: %s vs %s", a, b)
	}
}

func TestTempoMapTiming(t *testing.T) {
	tempos := []rawTempo{{tick: 0, bpm: 120}, {tick: 192, bpm: 60}}
	tm := newTempoMap(tempos, 192)

	if got := roundMs(tm.msAt(0)); got != 0 {
		t.Errorf("Expected 0ms at tick 0, got %v", got)
	}
	if got := roundMs(tm.msAt(96)); got != 250 {
		t.Errorf("Expected 250ms at tick 96, got %v", got)
	}
	if got := roundMs(tm.msAt(192)); got != 500 {
		t.Errorf("Expected 500ms at the tempo change, got %v", got)
	}
	// after the change one beat lasts a full second
	if got := roundMs(tm.msAt(384)); got != 1500 {
		t.Errorf("Expected 1500ms one beat after the change, got %v", got)
	}
	// a length crossing the tempo change picks up both rates
	if got := roundMs(tm.msLen(96, 192)); got != 750 {
		t.Errorf("Expected 750ms for a length crossing the change, got %v", got)
	}
}

func TestTempoMapSynthesizesDefault(t *testing.T) {
	tm := newTempoMap(nil, 192)
	if len(tm.markers) != 1 || tm.markers[0].BPM != 120 || tm.markers[0].Tick != 0 {
		t.Errorf("Expected synthesized 120 BPM at tick 0, got %+v", tm.markers)
	}

	tm = newTempoMap([]rawTempo{{tick: 100, bpm: 90}}, 192)
	if len(tm.markers) != 2 || tm.markers[0].BPM != 120 {
		t.Errorf("Expected synthesized marker before tick 100, got %+v", tm.markers)
	}
}

func TestMsTimeMonotonic(t *testing.T) {
	chart := parseChartOrFail(t, validChartData, DefaultModifiers())
	for _, track := range chart.Tracks {
		last := -1.0
		for _, group := range track.NoteEventGroups {
			for _, n := range group {
				if n.MsTime < last {
					t.Fatalf("msTime went backwards: %v after %v", n.MsTime, last)
				}
				if n.MsTime < 0 || n.MsLength < 0 {
					t.Fatalf("Negative time on note %+v", n)
				}
			}
			last = group[0].MsTime
		}
	}
}
