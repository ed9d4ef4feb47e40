package chartscan

import (
	"math"
	"sort"
)

// tempoMap converts ticks to absolute millisecond offsets. Markers are kept
// sorted with a marker at tick 0 always present, and each carries the
// cumulative time of its own tick so a lookup only has to extend linearly
// from the preceding marker.
type tempoMap struct {
	resolution int
	markers    []TempoMarker
}

// newTempoMap builds the monotonic tempo map from raw markers. A 120 BPM
// marker is synthesized at tick 0 when none exists there.
func newTempoMap(tempos []rawTempo, resolution int) *tempoMap {
	sorted := make([]rawTempo, len(tempos))
	copy(sorted, tempos)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].tick < sorted[j].tick })

	if len(sorted) == 0 || sorted[0].tick != 0 {
		sorted = append([]rawTempo{{tick: 0, bpm: 120}}, sorted...)
	}

	tm := &tempoMap{resolution: resolution}
	msTime := 0.0
	for i, t := range sorted {
		if i > 0 {
			prev := sorted[i-1]
			msTime += float64(t.tick-prev.tick) * msPerTick(prev.bpm, resolution)
		}
		tm.markers = append(tm.markers, TempoMarker{Tick: t.tick, BPM: t.bpm, MsTime: msTime})
	}
	return tm
}

// msPerTick is the linear advance rate between two tempo markers.
func msPerTick(bpm float64, resolution int) float64 {
	return 60000 / (bpm * float64(resolution))
}

// msAt converts an absolute tick to milliseconds.
func (tm *tempoMap) msAt(tick int64) float64 {
	i := sort.Search(len(tm.markers), func(i int) bool { return tm.markers[i].Tick > tick }) - 1
	if i < 0 {
		i = 0
	}
	m := tm.markers[i]
	return m.MsTime + float64(tick-m.Tick)*msPerTick(m.BPM, tm.resolution)
}

// msLen converts a (tick, length) pair to a millisecond duration. The length
// may cross tempo changes, so it is measured at the end tick.
func (tm *tempoMap) msLen(tick, length int64) float64 {
	if length == 0 {
		return 0
	}
	return tm.msAt(tick+length) - tm.msAt(tick)
}

// roundMs rounds a millisecond value to three decimal places for the
// external boundary. Internal math stays at full double precision.
func roundMs(ms float64) float64 {
	return math.Round(ms*1000) / 1000
}
