package chartscan

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"gitlab.com/gomidi/midi/v2/smf"
)

// midiTrackNames maps recognized SMF track names onto instruments. PART
// VOCALS and EVENTS are handled separately.
var midiTrackNames = map[string]Instrument{
	"T1 GEMS":              InstrumentGuitar,
	"PART GUITAR":          InstrumentGuitar,
	"PART GUITAR COOP":     InstrumentGuitarCoop,
	"PART RHYTHM":          InstrumentRhythm,
	"PART BASS":            InstrumentBass,
	"PART DRUMS":           InstrumentDrums,
	"PART KEYS":            InstrumentKeys,
	"PART GUITAR GHL":      InstrumentGuitarGHL,
	"PART GUITAR COOP GHL": InstrumentGuitarCoopGHL,
	"PART RHYTHM GHL":      InstrumentRhythmGHL,
	"PART BASS GHL":        InstrumentBassGHL,
}

// per-difficulty note-number bases
var fiveFretBases = map[Difficulty]uint8{
	DifficultyEasy:   59,
	DifficultyMedium: 71,
	DifficultyHard:   83,
	DifficultyExpert: 95,
}

var sixFretBases = map[Difficulty]uint8{
	DifficultyEasy:   58,
	DifficultyMedium: 70,
	DifficultyHard:   82,
	DifficultyExpert: 94,
}

var drumBases = map[Difficulty]uint8{
	DifficultyEasy:   60,
	DifficultyMedium: 72,
	DifficultyHard:   84,
	DifficultyExpert: 96,
}

// instrument-wide note numbers
const (
	midiSolo      = 103
	midiForceTap  = 104
	midiForceFlam = 109
	midiTomYellow = 110
	midiTomBlue   = 111
	midiTomGreen  = 112
	midiStarPower = 116
	midiFreestyle = 120
	midiFlexOne   = 126
	midiFlexTwo   = 127
)

// flexVelocityMax gates flex-lane events per difficulty; velocities below 21
// or above the bound drop the lane. Expert is unrestricted.
var flexVelocityMax = map[Difficulty]uint8{
	DifficultyEasy:   30,
	DifficultyMedium: 40,
	DifficultyHard:   50,
}

var midiDiscoRe = regexp.MustCompile(`^mix (\d) drums(\d)([a-z]*)$`)

// midiNote is a paired note-on/note-off with absolute tick timing.
type midiNote struct {
	tick     int64
	length   int64
	key      uint8
	velocity uint8
	channel  uint8
}

type midiText struct {
	tick int64
	text string
}

type midiSysEx struct {
	tick int64
	data []byte
}

// parseMidi lowers a Standard MIDI File into the raw model. Only format 1
// files with metrical timing are accepted.
func parseMidi(data []byte, mods IniChartModifiers) (chart *rawChart, err error) {
	// The SMF decoder can panic on truncated files; surface that as a
	// parse error instead.
	defer func() {
		if r := recover(); r != nil {
			chart = nil
			err = fmt.Errorf("invalid midi: %v", r)
		}
	}()

	song, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("invalid midi: %w", err)
	}
	if song.Format() != 1 {
		return nil, fmt.Errorf("unsupported midi format %d, expected format 1", song.Format())
	}
	if _, ok := song.TimeFormat.(smf.MetricTicks); !ok {
		return nil, fmt.Errorf("unsupported midi time format %v, expected metrical ticks", song.TimeFormat)
	}
	if len(song.Tracks) == 0 {
		return nil, fmt.Errorf("invalid midi: no tracks")
	}

	chart = &rawChart{
		format:     FormatMid,
		metadata:   make(map[string]string),
		resolution: int(song.TimeFormat.(smf.MetricTicks)),
	}

	parseMidiSyncTrack(chart, song.Tracks[0])

	for _, track := range song.Tracks {
		switch name := midiTrackName(track); name {
		case "EVENTS":
			parseMidiEventsTrack(chart, track)
		case "PART VOCALS":
			if midiTrackHasNotes(track) {
				chart.hasVocals = true
			}
		default:
			if inst, ok := midiTrackNames[name]; ok {
				parseMidiInstrumentTrack(chart, inst, track)
			}
		}
	}

	if len(chart.tempos) == 0 {
		chart.tempos = append(chart.tempos, rawTempo{tick: 0, bpm: 120})
	}
	if len(chart.timeSigs) == 0 {
		chart.timeSigs = append(chart.timeSigs, rawTimeSig{tick: 0, numerator: 4, denominator: 4})
	}

	for _, t := range chart.tracks {
		t.sortEvents()
	}

	applyLegacyStarPower(chart, mods)

	return chart, nil
}

// midiTrackName returns the track-name meta event found at tick 0, if any.
func midiTrackName(track smf.Track) string {
	var tick int64
	for _, ev := range track {
		tick += int64(ev.Delta)
		if tick > 0 {
			break
		}
		var name string
		if ev.Message.GetMetaTrackName(&name) {
			return strings.TrimSpace(name)
		}
	}
	return ""
}

func midiTrackHasNotes(track smf.Track) bool {
	for _, ev := range track {
		var ch, key, vel uint8
		if ev.Message.GetNoteOn(&ch, &key, &vel) && vel > 0 {
			return true
		}
	}
	return false
}

// parseMidiSyncTrack reads tempo and time-signature meta events from the
// first track.
func parseMidiSyncTrack(chart *rawChart, track smf.Track) {
	var tick int64
	for _, ev := range track {
		tick += int64(ev.Delta)

		var bpm float64
		if ev.Message.GetMetaTempo(&bpm) {
			if bpm > 0 {
				chart.tempos = append(chart.tempos, rawTempo{tick: tick, bpm: bpm})
			}
			continue
		}

		var num, denom uint8
		if ev.Message.GetMetaMeter(&num, &denom) {
			if num > 0 && denom > 0 {
				chart.timeSigs = append(chart.timeSigs, rawTimeSig{
					tick:        tick,
					numerator:   int(num),
					denominator: int(denom),
				})
			}
		}
	}
}

// parseMidiEventsTrack reads global section, end, and coda markers.
func parseMidiEventsTrack(chart *rawChart, track smf.Track) {
	var tick int64
	for _, ev := range track {
		tick += int64(ev.Delta)

		var text string
		if !ev.Message.GetMetaText(&text) {
			continue
		}
		text = trimEventBrackets(text)

		switch {
		case sectionEventRe.MatchString(text):
			name := sectionEventRe.FindStringSubmatch(text)[1]
			chart.sections = append(chart.sections, rawSection{tick: tick, name: name})
		case endEventRe.MatchString(text):
			chart.endTicks = append(chart.endTicks, tick)
		case codaEventRe.MatchString(text):
			if chart.codaTick == nil {
				t := tick
				chart.codaTick = &t
			}
		}
	}
}

// trimEventBrackets strips the [..] wrapper midi text events carry.
func trimEventBrackets(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]") {
		text = text[1 : len(text)-1]
	}
	return strings.TrimSpace(text)
}

// collectMidiTrack converts delta times to absolute ticks and pairs note-ons
// with note-offs. When several note-ons of one pitch are active, an off
// pairs with the most recent on from the same channel; unmatched note-ons
// are discarded at track end.
func collectMidiTrack(track smf.Track) (notes []midiNote, texts []midiText, sysexes []midiSysEx) {
	type openNote struct {
		tick     int64
		velocity uint8
		channel  uint8
	}
	active := make(map[uint8][]openNote)

	var tick int64
	for _, ev := range track {
		tick += int64(ev.Delta)
		msg := ev.Message

		var ch, key, vel uint8
		switch {
		case msg.GetNoteOn(&ch, &key, &vel) && vel > 0:
			active[key] = append(active[key], openNote{tick: tick, velocity: vel, channel: ch})
		case msg.GetNoteOff(&ch, &key, &vel) || (msg.GetNoteOn(&ch, &key, &vel) && vel == 0):
			stack := active[key]
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i].channel != ch {
					continue
				}
				notes = append(notes, midiNote{
					tick:     stack[i].tick,
					length:   tick - stack[i].tick,
					key:      key,
					velocity: stack[i].velocity,
					channel:  ch,
				})
				active[key] = append(stack[:i], stack[i+1:]...)
				break
			}
		default:
			var text string
			if msg.GetMetaText(&text) {
				texts = append(texts, midiText{tick: tick, text: trimEventBrackets(text)})
				continue
			}
			var data []byte
			if msg.GetSysEx(&data) {
				sysexes = append(sysexes, midiSysEx{tick: tick, data: append([]byte(nil), data...)})
			}
		}
	}
	return notes, texts, sysexes
}

// modifierWindow is a sustained instrument-wide or Phase-Shift modifier that
// will be split into per-note copies during fan-out.
type modifierWindow struct {
	tick       int64
	length     int64
	typ        rawType
	difficulty Difficulty // empty means every charted difficulty
}

func parseMidiInstrumentTrack(chart *rawChart, inst Instrument, track smf.Track) {
	notes, texts, sysexes := collectMidiTrack(track)
	instType := TypeOf(inst)

	enhancedOpens := false
	chartDynamics := false
	var discoFlips []discoFlipEvent
	for _, t := range texts {
		switch {
		case t.text == "ENHANCED_OPENS":
			enhancedOpens = true
		case t.text == "ENABLE_CHART_DYNAMICS":
			chartDynamics = true
		case instType == TypeDrums && midiDiscoRe.MatchString(t.text):
			m := midiDiscoRe.FindStringSubmatch(t.text)
			diff, ok := discoDifficulties[m[1]]
			if !ok {
				continue
			}
			var typ rawType
			switch m[3] {
			case "d":
				typ = rawDiscoFlipOn
			case "dnoflip":
				typ = rawDiscoNoFlipOn
			case "":
				typ = rawDiscoFlipOff
			default:
				continue
			}
			discoFlips = append(discoFlips, discoFlipEvent{tick: t.tick, difficulty: diff, typ: typ})
		}
	}

	perDiff := make(map[Difficulty][]rawEvent)
	var windows []modifierWindow
	var phrases []rawEvent
	var flexes []midiNote

	for _, note := range notes {
		if diff, typ, ok := classifyMidiNote(instType, note.key, enhancedOpens); ok {
			ev := rawEvent{tick: note.tick, length: note.length, typ: typ, velocity: note.velocity, channel: note.channel}
			perDiff[diff] = append(perDiff[diff], ev)
			if chartDynamics && typ.isDrumNote() && !typ.isKick() {
				if dyn, ok := dynamicsType(typ, note.velocity); ok {
					perDiff[diff] = append(perDiff[diff], rawEvent{tick: note.tick, typ: dyn})
				}
			}
			continue
		}

		switch note.key {
		case midiStarPower:
			phrases = append(phrases, rawEvent{tick: note.tick, length: note.length, typ: rawStarPower})
		case midiSolo:
			phrases = append(phrases, rawEvent{tick: note.tick, length: note.length, typ: rawSolo})
		case midiFreestyle:
			phrases = append(phrases, rawEvent{tick: note.tick, length: note.length, typ: rawFreestyle})
		case midiFlexOne, midiFlexTwo:
			flexes = append(flexes, note)
		case midiForceTap:
			if instType != TypeDrums {
				windows = append(windows, modifierWindow{tick: note.tick, length: note.length, typ: rawForceTap})
			}
		case midiForceFlam:
			if instType == TypeDrums {
				windows = append(windows, modifierWindow{tick: note.tick, length: note.length, typ: rawForceFlam})
			}
		case midiTomYellow, midiTomBlue, midiTomGreen:
			if instType == TypeDrums {
				typ := rawTomYellow + rawType(note.key-midiTomYellow)
				windows = append(windows, modifierWindow{tick: note.tick, length: note.length, typ: typ})
			}
		}
	}

	// Phase-Shift SysEx: 50 53 00 00 <diff> <type> <on>. Type 01 forces
	// open, type 04 forces tap; diff FF fans out to every difficulty.
	type sysexKey struct {
		diff uint8
		typ  uint8
	}
	openSysEx := make(map[sysexKey]int64)
	for _, sx := range sysexes {
		if len(sx.data) < 7 || sx.data[0] != 0x50 || sx.data[1] != 0x53 || sx.data[2] != 0 || sx.data[3] != 0 {
			continue
		}
		diff, typ, on := sx.data[4], sx.data[5], sx.data[6]
		if typ != 0x01 && typ != 0x04 {
			continue
		}
		key := sysexKey{diff: diff, typ: typ}
		if on != 0 {
			openSysEx[key] = sx.tick
			continue
		}
		start, ok := openSysEx[key]
		if !ok {
			continue
		}
		delete(openSysEx, key)

		var raw rawType
		if typ == 0x01 {
			raw = rawForceOpen
		} else {
			raw = rawForceTap
		}
		win := modifierWindow{tick: start, length: sx.tick - start, typ: raw}
		if diff != 0xFF {
			if d, ok := sysexDifficulty(diff); ok {
				win.difficulty = d
			} else {
				continue
			}
		}
		windows = append(windows, win)
	}

	// Difficulties are charted only when they carry playable notes; stray
	// modifiers on an uncharted difficulty do not survive.
	charted := make(map[Difficulty]bool)
	for diff, events := range perDiff {
		for _, ev := range events {
			if ev.typ.isPlayable() {
				charted[diff] = true
				break
			}
		}
	}

	for _, diff := range Difficulties {
		if !charted[diff] {
			continue
		}
		t := chart.track(inst, diff)
		t.events = append(t.events, perDiff[diff]...)

		for _, ph := range phrases {
			ev := rawEvent{tick: ph.tick, length: ph.length, typ: ph.typ}
			switch ph.typ {
			case rawStarPower:
				t.starPower = append(t.starPower, ev)
			case rawSolo:
				t.solos = append(t.solos, ev)
			case rawFreestyle:
				t.freestyle = append(t.freestyle, ev)
			}
		}

		for _, fx := range flexes {
			if max, gated := flexVelocityMax[diff]; gated {
				if fx.velocity < 21 || fx.velocity > max {
					continue
				}
			}
			typ := rawFlexSingle
			if fx.key == midiFlexTwo {
				typ = rawFlexDouble
			}
			t.flexLanes = append(t.flexLanes, rawEvent{tick: fx.tick, length: fx.length, typ: typ})
		}

		for _, win := range windows {
			if win.difficulty != "" && win.difficulty != diff {
				continue
			}
			splitModifierWindow(t, win)
		}

		for _, flip := range discoFlips {
			if flip.difficulty == diff {
				t.events = append(t.events, rawEvent{tick: flip.tick, typ: flip.typ})
			}
		}
	}
}

// splitModifierWindow copies a sustained modifier as zero-length events onto
// every playable-note tick inside its half-open [start, end) range,
// matching the .chart per-note modifier convention.
func splitModifierWindow(t *rawTrack, win modifierWindow) {
	end := win.tick + win.length
	seen := make(map[int64]bool)
	for _, ev := range t.events {
		if !ev.typ.isPlayable() {
			continue
		}
		if ev.tick < win.tick || ev.tick >= end || seen[ev.tick] {
			continue
		}
		seen[ev.tick] = true
		t.events = append(t.events, rawEvent{tick: ev.tick, typ: win.typ})
	}
}

// classifyMidiNote buckets a note number into a difficulty slot. The bool
// result is false for instrument-wide note numbers.
func classifyMidiNote(instType InstrumentType, key uint8, enhancedOpens bool) (Difficulty, rawType, bool) {
	switch instType {
	case TypeDrums:
		for _, diff := range Difficulties {
			base := drumBases[diff]
			if key+1 == base {
				return diff, rawDrumKick2x, true
			}
			if key >= base && key <= base+5 {
				types := [...]rawType{rawDrumKick, rawDrumRed, rawDrumYellow, rawDrumBlue, rawDrumFive4, rawDrumFive5}
				return diff, types[key-base], true
			}
		}
	case TypeSixFret:
		for _, diff := range Difficulties {
			base := sixFretBases[diff]
			if key >= base && key <= base+8 {
				types := [...]rawType{
					rawSixOpen, rawSixWhite1, rawSixWhite2, rawSixWhite3,
					rawSixBlack1, rawSixBlack2, rawSixBlack3,
					rawForceHopo, rawForceStrum,
				}
				return diff, types[key-base], true
			}
		}
	default:
		for _, diff := range Difficulties {
			base := fiveFretBases[diff]
			if key >= base && key <= base+7 {
				types := [...]rawType{
					rawFiveOpen, rawFiveGreen, rawFiveRed, rawFiveYellow,
					rawFiveBlue, rawFiveOrange,
					rawForceHopo, rawForceStrum,
				}
				typ := types[key-base]
				if typ == rawFiveOpen && !enhancedOpens {
					return "", rawInvalid, false
				}
				return diff, typ, true
			}
		}
	}
	return "", rawInvalid, false
}

func sysexDifficulty(code uint8) (Difficulty, bool) {
	switch code {
	case 0:
		return DifficultyEasy, true
	case 1:
		return DifficultyMedium, true
	case 2:
		return DifficultyHard, true
	case 3:
		return DifficultyExpert, true
	}
	return "", false
}

// dynamicsType maps an extreme velocity to the accent or ghost marker for
// the note's lane when chart dynamics are enabled.
func dynamicsType(note rawType, velocity uint8) (rawType, bool) {
	var accents = map[rawType]rawType{
		rawDrumRed:    rawAccentRed,
		rawDrumYellow: rawAccentYellow,
		rawDrumBlue:   rawAccentBlue,
		rawDrumFive4:  rawAccentFive4,
		rawDrumFive5:  rawAccentFive5,
	}
	var ghosts = map[rawType]rawType{
		rawDrumRed:    rawGhostRed,
		rawDrumYellow: rawGhostYellow,
		rawDrumBlue:   rawGhostBlue,
		rawDrumFive4:  rawGhostFive4,
		rawDrumFive5:  rawGhostFive5,
	}
	switch velocity {
	case 127:
		t, ok := accents[note]
		return t, ok
	case 1:
		t, ok := ghosts[note]
		return t, ok
	}
	return rawInvalid, false
}

// applyLegacyStarPower reinterprets solos as Star Power on GH1/GH2-era
// tracks. The swap fires when multiplier_note is 103, or when it is unset
// and a fret track has no Star Power but more than one solo phrase.
func applyLegacyStarPower(chart *rawChart, mods IniChartModifiers) {
	if mods.MultiplierNote == 116 {
		return
	}
	for _, t := range chart.tracks {
		if TypeOf(t.instrument) == TypeDrums {
			continue
		}
		swap := mods.MultiplierNote == 103 ||
			(mods.MultiplierNote == 0 && len(t.starPower) == 0 && len(t.solos) > 1)
		if !swap {
			continue
		}
		rejected := t.starPower
		t.starPower = t.solos
		t.solos = nil
		for _, ph := range rejected {
			ph.typ = rawStarPower
			t.rejectedStarPower = append(t.rejectedStarPower, ph)
		}
	}
}
