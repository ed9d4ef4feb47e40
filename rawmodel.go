package chartscan

import "sort"

// rawType enumerates every event kind the two raw parsers can emit. Both the
// .chart and .mid front ends lower into this one vocabulary so the
// normalizer never needs to know which file format it is looking at beyond
// the few rules that explicitly differ.
type rawType uint8

const (
	rawInvalid rawType = iota

	// five-fret playable notes
	rawFiveOpen
	rawFiveGreen
	rawFiveRed
	rawFiveYellow
	rawFiveBlue
	rawFiveOrange

	// six-fret playable notes
	rawSixOpen
	rawSixWhite1
	rawSixWhite2
	rawSixWhite3
	rawSixBlack1
	rawSixBlack2
	rawSixBlack3

	// drum playable notes; rawDrumFive4 is the shared 4-lane-green /
	// 5-lane-orange pad, rawDrumFive5 the extra five-lane green pad
	rawDrumKick
	rawDrumKick2x
	rawDrumRed
	rawDrumYellow
	rawDrumBlue
	rawDrumFive4
	rawDrumFive5

	// fret modifiers
	rawForceUnnatural
	rawForceHopo
	rawForceStrum
	rawForceTap
	rawForceOpen

	// drum modifiers
	rawForceFlam
	rawTomYellow
	rawTomBlue
	rawTomGreen
	rawCymbalYellow
	rawCymbalBlue
	rawCymbalGreen
	rawAccentRed
	rawAccentYellow
	rawAccentBlue
	rawAccentFive4
	rawAccentFive5
	rawGhostRed
	rawGhostYellow
	rawGhostBlue
	rawGhostFive4
	rawGhostFive5

	// disco-flip register values; numeric order is the tie-break order when
	// several arrive on the same tick (lowest wins)
	rawDiscoFlipOff
	rawDiscoFlipOn
	rawDiscoNoFlipOn

	// phrases
	rawStarPower
	rawSolo
	rawSoloStart
	rawSoloEnd
	rawFreestyle
	rawFlexSingle
	rawFlexDouble
)

// isPlayable reports whether the type is a physical note.
func (t rawType) isPlayable() bool {
	return t >= rawFiveOpen && t <= rawDrumFive5
}

func (t rawType) isDrumNote() bool {
	return t >= rawDrumKick && t <= rawDrumFive5
}

func (t rawType) isKick() bool {
	return t == rawDrumKick || t == rawDrumKick2x
}

func (t rawType) isDisco() bool {
	return t == rawDiscoFlipOff || t == rawDiscoFlipOn || t == rawDiscoNoFlipOn
}

// rawEvent is one typed (tick, length) event. Velocity and channel are only
// populated by the .mid parser and are folded away by the modifier passes.
type rawEvent struct {
	tick     int64
	length   int64
	typ      rawType
	velocity uint8
	channel  uint8
}

// rawTempo is a tempo marker before timing resolution.
type rawTempo struct {
	tick int64
	bpm  float64
}

// rawTimeSig is a time-signature marker before timing resolution.
type rawTimeSig struct {
	tick        int64
	numerator   int
	denominator int
}

// rawSection is a named global event.
type rawSection struct {
	tick int64
	name string
}

// rawTrack is the per-track event list shared by both parsers.
type rawTrack struct {
	instrument Instrument
	difficulty Difficulty
	events     []rawEvent

	// phrases that never become per-note modifiers
	starPower         []rawEvent
	rejectedStarPower []rawEvent
	solos             []rawEvent
	flexLanes         []rawEvent
	freestyle         []rawEvent
}

// rawChart is the format-neutral intermediate model both parsers produce.
type rawChart struct {
	format     Format
	resolution int
	metadata   map[string]string

	tempos   []rawTempo
	timeSigs []rawTimeSig
	sections []rawSection
	endTicks []int64

	tracks    []*rawTrack
	hasVocals bool

	// codaTick is the tick of the first coda event, when one exists. Drum
	// freestyle phrases at or after it are big-rock-ending sections.
	codaTick *int64
}

// track returns the raw track for the identity, creating it on demand.
func (c *rawChart) track(instrument Instrument, difficulty Difficulty) *rawTrack {
	for _, t := range c.tracks {
		if t.instrument == instrument && t.difficulty == difficulty {
			return t
		}
	}
	t := &rawTrack{instrument: instrument, difficulty: difficulty}
	c.tracks = append(c.tracks, t)
	return t
}

// lookup returns an existing raw track or nil.
func (c *rawChart) lookup(instrument Instrument, difficulty Difficulty) *rawTrack {
	for _, t := range c.tracks {
		if t.instrument == instrument && t.difficulty == difficulty {
			return t
		}
	}
	return nil
}

// sortEvents stable-sorts every event list by tick so downstream passes can
// walk the track linearly.
func (t *rawTrack) sortEvents() {
	byTick := func(events []rawEvent) {
		sort.SliceStable(events, func(i, j int) bool {
			return events[i].tick < events[j].tick
		})
	}
	byTick(t.events)
	byTick(t.starPower)
	byTick(t.solos)
	byTick(t.flexLanes)
	byTick(t.freestyle)
}

// hasPlayableNotes reports whether any physical note exists on the track.
func (t *rawTrack) hasPlayableNotes() bool {
	for _, ev := range t.events {
		if ev.typ.isPlayable() {
			return true
		}
	}
	return false
}
