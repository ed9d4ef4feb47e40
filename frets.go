package chartscan

var fretNoteColors = map[rawType]NoteType{
	rawFiveOpen:   NoteOpen,
	rawFiveGreen:  NoteGreen,
	rawFiveRed:    NoteRed,
	rawFiveYellow: NoteYellow,
	rawFiveBlue:   NoteBlue,
	rawFiveOrange: NoteOrange,
	rawSixOpen:    NoteOpen,
	rawSixWhite1:  NoteWhite1,
	rawSixWhite2:  NoteWhite2,
	rawSixWhite3:  NoteWhite3,
	rawSixBlack1:  NoteBlack1,
	rawSixBlack2:  NoteBlack2,
	rawSixBlack3:  NoteBlack3,
}

// resolveFretGroups folds fret modifiers into per-note flags and settles
// every group as strum, hopo, or tap.
func resolveFretGroups(groups []tickGroup, format Format, hopoTicks int64) [][]NoteEvent {
	var out [][]NoteEvent

	var prevColors map[NoteType]bool
	var prevTick int64
	havePrev := false

	for _, group := range groups {
		forceOpen := false
		forceTap := false
		forceUnnatural := false
		forceHopo := false
		forceStrum := false

		var notes []NoteEvent
		for _, ev := range group.events {
			switch ev.typ {
			case rawForceOpen:
				forceOpen = true
			case rawForceTap:
				forceTap = true
			case rawForceUnnatural:
				forceUnnatural = true
			case rawForceHopo:
				forceHopo = true
			case rawForceStrum:
				forceStrum = true
			default:
				if color, ok := fretNoteColors[ev.typ]; ok {
					notes = append(notes, NoteEvent{Tick: ev.tick, Length: ev.length, Type: color})
				}
			}
		}
		if len(notes) == 0 {
			continue
		}

		// forceOpen promotes the longest note in the group to open and
		// drops the rest.
		if forceOpen {
			longest := notes[0]
			for _, n := range notes[1:] {
				if n.Length > longest.Length {
					longest = n
				}
			}
			longest.Type = NoteOpen
			notes = []NoteEvent{longest}
		}

		colors := make(map[NoteType]bool, len(notes))
		for _, n := range notes {
			colors[n.Type] = true
		}

		natural := false
		if havePrev && group.tick-prevTick <= hopoTicks && len(notes) == 1 && !sameColors(colors, prevColors) {
			natural = true
			if format == FormatMid && len(prevColors) > 1 && subsetColors(colors, prevColors) {
				natural = false
			}
		}

		var flag NoteFlags
		switch {
		case forceTap:
			flag = FlagTap
		case forceHopo:
			flag = FlagHopo
		case forceStrum:
			flag = FlagStrum
		case forceUnnatural != natural:
			flag = FlagHopo
		default:
			flag = FlagStrum
		}
		for i := range notes {
			notes[i].Flags = flag
		}

		out = append(out, notes)
		prevColors = colors
		prevTick = group.tick
		havePrev = true
	}
	return out
}

func sameColors(a, b map[NoteType]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for c := range a {
		if !b[c] {
			return false
		}
	}
	return true
}

func subsetColors(a, b map[NoteType]bool) bool {
	for c := range a {
		if !b[c] {
			return false
		}
	}
	return true
}
