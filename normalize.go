package chartscan

import "sort"

// normalizeChart runs the shared normalization pipeline over a raw chart:
// tempo timing, sustain trimming, modifier resolution, HOPO resolution,
// chord snapping, and note and phrase overlap repair. Phrases are not pruned
// here; SerializeTrack drops phrases that cover no notes.
func normalizeChart(raw *rawChart, mods IniChartModifiers) *ParsedChart {
	tm := newTempoMap(raw.tempos, raw.resolution)

	chart := &ParsedChart{
		Format:     raw.format,
		Resolution: raw.resolution,
		Metadata:   raw.metadata,
		HasVocals:  raw.hasVocals,
	}

	// The map keeps full precision for conversions; only the published
	// markers are rounded.
	chart.Tempos = make([]TempoMarker, len(tm.markers))
	copy(chart.Tempos, tm.markers)
	for i := range chart.Tempos {
		chart.Tempos[i].MsTime = roundMs(chart.Tempos[i].MsTime)
	}

	chart.TimeSignatures = normalizeTimeSigs(raw.timeSigs, tm)

	sections := make([]rawSection, len(raw.sections))
	copy(sections, raw.sections)
	sort.SliceStable(sections, func(i, j int) bool { return sections[i].tick < sections[j].tick })
	for _, s := range sections {
		chart.Sections = append(chart.Sections, Section{Tick: s.tick, MsTime: roundMs(tm.msAt(s.tick)), Name: s.name})
	}

	endTicks := make([]int64, len(raw.endTicks))
	copy(endTicks, raw.endTicks)
	sort.Slice(endTicks, func(i, j int) bool { return endTicks[i] < endTicks[j] })
	for _, tick := range endTicks {
		chart.EndEvents = append(chart.EndEvents, TickEvent{Tick: tick, MsTime: roundMs(tm.msAt(tick))})
	}

	chart.DrumType = inferDrumType(raw, mods)

	for _, rt := range raw.tracks {
		if !rt.hasPlayableNotes() {
			continue
		}
		chart.Tracks = append(chart.Tracks, normalizeTrack(raw, rt, mods, chart.DrumType, tm))
	}
	sort.SliceStable(chart.Tracks, func(i, j int) bool {
		a, b := chart.Tracks[i], chart.Tracks[j]
		if a.Instrument != b.Instrument {
			return instrumentOrder(a.Instrument) < instrumentOrder(b.Instrument)
		}
		return difficultyOrder(a.Difficulty) < difficultyOrder(b.Difficulty)
	})

	return chart
}

func instrumentOrder(inst Instrument) int {
	for i, candidate := range Instruments {
		if candidate == inst {
			return i
		}
	}
	return len(Instruments)
}

func difficultyOrder(diff Difficulty) int {
	for i, candidate := range Difficulties {
		if candidate == diff {
			return i
		}
	}
	return len(Difficulties)
}

func normalizeTimeSigs(raw []rawTimeSig, tm *tempoMap) []TimeSignature {
	sorted := make([]rawTimeSig, len(raw))
	copy(sorted, raw)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].tick < sorted[j].tick })

	if len(sorted) == 0 || sorted[0].tick != 0 {
		sorted = append([]rawTimeSig{{tick: 0, numerator: 4, denominator: 4}}, sorted...)
	}

	var out []TimeSignature
	for _, ts := range sorted {
		out = append(out, TimeSignature{
			Tick:        ts.tick,
			Numerator:   ts.numerator,
			Denominator: ts.denominator,
			MsTime:      roundMs(tm.msAt(ts.tick)),
		})
	}
	return out
}

// sustainThreshold is the cutoff below which a sustain collapses to zero.
// .mid charts default to a third of a beat plus one; .chart charts keep
// every sustain unless song.ini overrides.
func sustainThreshold(mods IniChartModifiers, format Format, resolution int) int64 {
	if mods.SustainCutoffThreshold >= 0 {
		return int64(mods.SustainCutoffThreshold)
	}
	if format == FormatMid {
		return int64(resolution/3) + 1
	}
	return 0
}

// hopoThreshold is the maximum tick gap for a natural hammer-on.
func hopoThreshold(mods IniChartModifiers, format Format, resolution int) int64 {
	if mods.HopoFrequency != 0 {
		return int64(mods.HopoFrequency)
	}
	if mods.EighthNoteHopo {
		return int64(1 + resolution/2)
	}
	if format == FormatMid {
		return int64(1 + resolution/3)
	}
	return int64(65 * resolution / 192)
}

// tickGroup is a slice of raw events sharing one tick.
type tickGroup struct {
	tick   int64
	events []rawEvent
}

func groupByTick(events []rawEvent) []tickGroup {
	var groups []tickGroup
	for _, ev := range events {
		if n := len(groups); n > 0 && groups[n-1].tick == ev.tick {
			groups[n-1].events = append(groups[n-1].events, ev)
			continue
		}
		groups = append(groups, tickGroup{tick: ev.tick, events: []rawEvent{ev}})
	}
	return groups
}

func normalizeTrack(raw *rawChart, rt *rawTrack, mods IniChartModifiers, drumType *DrumType, tm *tempoMap) *Track {
	track := &Track{Instrument: rt.instrument, Difficulty: rt.difficulty}

	cutoff := sustainThreshold(mods, raw.format, raw.resolution)
	events := make([]rawEvent, len(rt.events))
	copy(events, rt.events)
	for i := range events {
		if events[i].typ.isPlayable() && events[i].length <= cutoff {
			events[i].length = 0
		}
	}

	groups := groupByTick(events)

	var noteGroups [][]NoteEvent
	if TypeOf(rt.instrument) == TypeDrums {
		noteGroups = resolveDrumGroups(groups, raw.format, drumType)
	} else {
		noteGroups = resolveFretGroups(groups, raw.format, hopoThreshold(mods, raw.format, raw.resolution))
	}

	if mods.ChordSnapThreshold > 0 {
		noteGroups = snapChords(noteGroups, int64(mods.ChordSnapThreshold), TypeOf(rt.instrument))
	}

	noteGroups = repairNoteOverlaps(noteGroups)

	for gi := range noteGroups {
		for ni := range noteGroups[gi] {
			n := &noteGroups[gi][ni]
			n.MsTime = roundMs(tm.msAt(n.Tick))
			n.MsLength = roundMs(tm.msLen(n.Tick, n.Length))
		}
	}
	track.NoteEventGroups = noteGroups

	track.StarPowerSections = buildPhrases(rt.starPower, tm)
	track.RejectedStarPowerSections = buildPhrases(rt.rejectedStarPower, tm)
	track.SoloSections = buildPhrases(rt.solos, tm)

	for _, ph := range repairPhraseOverlaps(sortedPhraseEvents(rt.flexLanes)) {
		track.FlexLanes = append(track.FlexLanes, FlexLane{
			Phrase:   timedPhrase(ph, tm),
			IsDouble: ph.typ == rawFlexDouble,
		})
	}

	for _, ph := range repairPhraseOverlaps(sortedPhraseEvents(rt.freestyle)) {
		track.DrumFreestyleSections = append(track.DrumFreestyleSections, FreestyleSection{
			Phrase: timedPhrase(ph, tm),
			IsCoda: raw.codaTick != nil && ph.tick >= *raw.codaTick,
		})
	}

	return track
}

func sortedPhraseEvents(events []rawEvent) []rawEvent {
	out := make([]rawEvent, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool { return out[i].tick < out[j].tick })
	return out
}

func timedPhrase(ev rawEvent, tm *tempoMap) Phrase {
	return Phrase{
		Tick:     ev.tick,
		MsTime:   roundMs(tm.msAt(ev.tick)),
		Length:   ev.length,
		MsLength: roundMs(tm.msLen(ev.tick, ev.length)),
	}
}

func buildPhrases(events []rawEvent, tm *tempoMap) []Phrase {
	var out []Phrase
	for _, ev := range repairPhraseOverlaps(sortedPhraseEvents(events)) {
		out = append(out, timedPhrase(ev, tm))
	}
	return out
}

// repairPhraseOverlaps drops same-tick duplicates keeping the longest, then
// resolves adjacent overlap by truncating the earlier phrase and extending
// the later one so total covered time never shrinks.
func repairPhraseOverlaps(events []rawEvent) []rawEvent {
	if len(events) == 0 {
		return events
	}

	var out []rawEvent
	for _, ev := range events {
		if n := len(out); n > 0 && out[n-1].tick == ev.tick {
			if ev.length > out[n-1].length {
				out[n-1] = ev
			}
			continue
		}
		out = append(out, ev)
	}

	for i := 0; i+1 < len(out); i++ {
		cur, next := &out[i], &out[i+1]
		end := cur.tick + cur.length
		if end <= next.tick {
			continue
		}
		cur.length = next.tick - cur.tick
		if end > next.tick+next.length {
			next.length = end - next.tick
		}
	}
	return out
}

// snapChords merges note groups that land within the snap threshold of the
// previous kept group. Merged notes adopt the kept tick and the shortest
// length across the merge; fret groups inherit the kept group's strum flags
// and drum groups inherit per-color flags plus the union of disco bits.
func snapChords(groups [][]NoteEvent, threshold int64, instType InstrumentType) [][]NoteEvent {
	if len(groups) == 0 {
		return groups
	}

	out := [][]NoteEvent{groups[0]}
	for _, group := range groups[1:] {
		kept := out[len(out)-1]
		if group[0].Tick-kept[0].Tick > threshold {
			out = append(out, group)
			continue
		}

		minLen := kept[0].Length
		for _, n := range kept {
			if n.Length < minLen {
				minLen = n.Length
			}
		}
		for _, n := range group {
			if n.Length < minLen {
				minLen = n.Length
			}
		}

		merged := kept
		for _, n := range group {
			n.Tick = kept[0].Tick
			if instType == TypeDrums {
				n.Flags = snapDrumFlags(n, kept)
			} else {
				n.Flags = (n.Flags &^ (FlagStrum | FlagHopo | FlagTap)) | (kept[0].Flags & (FlagStrum | FlagHopo | FlagTap))
			}
			merged = append(merged, n)
		}
		for i := range merged {
			merged[i].Length = minLen
		}
		out[len(out)-1] = merged
	}
	return out
}

func snapDrumFlags(n NoteEvent, kept []NoteEvent) NoteFlags {
	flags := n.Flags
	var keptDisco NoteFlags
	for _, k := range kept {
		keptDisco |= k.Flags & (FlagDisco | FlagDiscoNoflip)
		if k.Type == n.Type {
			flags = k.Flags
		}
	}
	flags |= keptDisco
	// a flip beats a noflip when the merge carries both
	if flags&FlagDisco != 0 {
		flags &^= FlagDiscoNoflip
	}
	return flags
}

// repairNoteOverlaps removes in-group duplicates (keeping the longest, then
// the highest flag bits) and trims cross-group sustain overlap per note
// type: the earlier sustain is cut at the next note's start and the later
// note is extended to cover any remainder.
func repairNoteOverlaps(groups [][]NoteEvent) [][]NoteEvent {
	var out [][]NoteEvent
	for _, group := range groups {
		var deduped []NoteEvent
		for _, n := range group {
			found := false
			for i := range deduped {
				if deduped[i].Type != n.Type {
					continue
				}
				found = true
				if n.Length > deduped[i].Length ||
					(n.Length == deduped[i].Length && n.Flags > deduped[i].Flags) {
					deduped[i] = n
				}
				break
			}
			if !found {
				deduped = append(deduped, n)
			}
		}
		if len(deduped) > 0 {
			out = append(out, deduped)
		}
	}

	last := make(map[NoteType]*NoteEvent)
	for gi := range out {
		for ni := range out[gi] {
			n := &out[gi][ni]
			if prev, ok := last[n.Type]; ok {
				if end := prev.Tick + prev.Length; end > n.Tick {
					prev.Length = n.Tick - prev.Tick
					if end > n.Tick+n.Length {
						n.Length = end - n.Tick
					}
				}
			}
			last[n.Type] = n
		}
	}
	return out
}
