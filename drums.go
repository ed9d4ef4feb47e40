package chartscan

// inferDrumType derives the drum lane layout for a chart. song.ini wins;
// otherwise tom/cymbal markers imply pro drums and a five-lane green pad
// implies five-lane. Nil when the chart has no drum track.
func inferDrumType(raw *rawChart, mods IniChartModifiers) *DrumType {
	hasDrums := false
	hasMarkers := false
	hasFiveLane := false
	for _, t := range raw.tracks {
		if TypeOf(t.instrument) != TypeDrums || !t.hasPlayableNotes() {
			continue
		}
		hasDrums = true
		for _, ev := range t.events {
			switch ev.typ {
			case rawTomYellow, rawTomBlue, rawTomGreen,
				rawCymbalYellow, rawCymbalBlue, rawCymbalGreen:
				hasMarkers = true
			case rawDrumFive5:
				hasFiveLane = true
			}
		}
	}
	if !hasDrums {
		return nil
	}

	dt := DrumsFourLane
	switch {
	case mods.ProDrums:
		dt = DrumsFourLanePro
	case mods.FiveLaneDrums:
		dt = DrumsFiveLane
	case hasMarkers:
		dt = DrumsFourLanePro
	case hasFiveLane:
		dt = DrumsFiveLane
	}
	return &dt
}

var drumPadColors = map[rawType]NoteType{
	rawDrumRed:    NoteRedDrum,
	rawDrumYellow: NoteYellowDrum,
	rawDrumBlue:   NoteBlueDrum,
	rawDrumFive4:  NoteGreenDrum,
	rawDrumFive5:  NoteGreenDrum,
}

var drumAccentPads = map[rawType]rawType{
	rawAccentRed:    rawDrumRed,
	rawAccentYellow: rawDrumYellow,
	rawAccentBlue:   rawDrumBlue,
	rawAccentFive4:  rawDrumFive4,
	rawAccentFive5:  rawDrumFive5,
}

var drumGhostPads = map[rawType]rawType{
	rawGhostRed:    rawDrumRed,
	rawGhostYellow: rawDrumYellow,
	rawGhostBlue:   rawDrumBlue,
	rawGhostFive4:  rawDrumFive4,
	rawGhostFive5:  rawDrumFive5,
}

var tomMarkerColors = map[rawType]NoteType{
	rawTomYellow: NoteYellowDrum,
	rawTomBlue:   NoteBlueDrum,
	rawTomGreen:  NoteGreenDrum,
}

var cymbalMarkerColors = map[rawType]NoteType{
	rawCymbalYellow: NoteYellowDrum,
	rawCymbalBlue:   NoteBlueDrum,
	rawCymbalGreen:  NoteGreenDrum,
}

// resolveDrumGroups folds drum modifiers into per-note flags. The disco
// register carries across groups, start-inclusive and end-exclusive; when
// several flip events land on one tick the lowest-valued one wins.
func resolveDrumGroups(groups []tickGroup, format Format, drumType *DrumType) [][]NoteEvent {
	dt := DrumsFourLane
	if drumType != nil {
		dt = *drumType
	}

	disco := rawDiscoFlipOff
	var out [][]NoteEvent

	for _, group := range groups {
		flam := false
		toms := make(map[NoteType]bool)
		cymbals := make(map[NoteType]bool)
		accents := make(map[rawType]bool)
		ghosts := make(map[rawType]bool)
		hasFive4 := false
		hasFive5 := false

		flipHere := rawInvalid
		for _, ev := range group.events {
			switch {
			case ev.typ == rawForceFlam:
				flam = true
			case ev.typ.isDisco():
				if flipHere == rawInvalid || ev.typ < flipHere {
					flipHere = ev.typ
				}
			case ev.typ == rawDrumFive4:
				hasFive4 = true
			case ev.typ == rawDrumFive5:
				hasFive5 = true
			}
			if color, ok := tomMarkerColors[ev.typ]; ok {
				toms[color] = true
			}
			if color, ok := cymbalMarkerColors[ev.typ]; ok {
				cymbals[color] = true
			}
			if pad, ok := drumAccentPads[ev.typ]; ok {
				accents[pad] = true
			}
			if pad, ok := drumGhostPads[ev.typ]; ok {
				ghosts[pad] = true
			}
		}
		if flipHere != rawInvalid {
			disco = flipHere
		}

		var notes []NoteEvent
		for _, ev := range group.events {
			if !ev.typ.isDrumNote() {
				continue
			}

			note := NoteEvent{Tick: ev.tick, Length: ev.length}

			if ev.typ.isKick() {
				note.Type = NoteKick
				if ev.typ == rawDrumKick2x {
					note.Flags |= FlagDoubleKick
				}
				notes = append(notes, note)
				continue
			}

			note.Type = drumPadColors[ev.typ]
			if ev.typ == rawDrumFive5 && hasFive4 && hasFive5 {
				note.Type = NoteBlueDrum
			}

			note.Flags |= drumSurfaceFlag(dt, format, ev.typ, note.Type, toms, cymbals)

			if flam {
				note.Flags |= FlagFlam
			}
			if accents[ev.typ] {
				note.Flags |= FlagAccent
			}
			if ghosts[ev.typ] {
				note.Flags |= FlagGhost
			}
			if note.Type == NoteRedDrum || note.Type == NoteYellowDrum {
				switch disco {
				case rawDiscoFlipOn:
					note.Flags |= FlagDisco
				case rawDiscoNoFlipOn:
					note.Flags |= FlagDiscoNoflip
				}
			}

			notes = append(notes, note)
		}

		if len(notes) > 0 {
			out = append(out, notes)
		}
	}
	return out
}

// drumSurfaceFlag picks the tom or cymbal flag for a non-kick note. In pro
// drums the marker sense differs by format: .mid notes are cymbals unless a
// tom marker covers them, .chart notes are toms unless a cymbal marker does.
func drumSurfaceFlag(dt DrumType, format Format, pad rawType, color NoteType, toms, cymbals map[NoteType]bool) NoteFlags {
	switch dt {
	case DrumsFiveLane:
		switch pad {
		case rawDrumYellow, rawDrumFive4:
			return FlagCymbal
		default:
			return FlagTom
		}
	case DrumsFourLanePro:
		if color == NoteRedDrum {
			return FlagTom
		}
		if format == FormatMid {
			if toms[color] {
				return FlagTom
			}
			return FlagCymbal
		}
		if cymbals[color] {
			return FlagCymbal
		}
		return FlagTom
	default:
		return FlagTom
	}
}
