package chartscan

import "fmt"

// IssueType names one rule of the chart-level issue detector.
type IssueType string

const (
	IssueMisalignedTimeSignature IssueType = "misalignedTimeSignature"
	IssueNoNotes                 IssueType = "noNotes"
	IssueNoExpert                IssueType = "noExpert"
	IssueDifficultyNotReduced    IssueType = "difficultyNotReduced"
	IssueIsDefaultBPM            IssueType = "isDefaultBPM"
	IssueNoSections              IssueType = "noSections"
	IssueBadEndEvent             IssueType = "badEndEvent"
	IssueSmallLeadingSilence     IssueType = "smallLeadingSilence"
	IssueNoStarPower             IssueType = "noStarPower"
	IssueEmptyStarPower          IssueType = "emptyStarPower"
	IssueEmptySoloSection        IssueType = "emptySoloSection"
	IssueEmptyFlexLane           IssueType = "emptyFlexLane"
	IssueBadStarPower            IssueType = "badStarPower"
	IssueNoDrumActivationLanes   IssueType = "noDrumActivationLanes"
	IssueDifficultyForbiddenNote IssueType = "difficultyForbiddenNote"
	IssueInvalidChord            IssueType = "invalidChord"
	IssueBrokenNote              IssueType = "brokenNote"
	IssueBadSustainGap           IssueType = "badSustainGap"
	IssueBabySustain             IssueType = "babySustain"
)

// Issue is one detected anomaly. Chart-wide issues leave Instrument and
// Difficulty empty; per-track issues carry both.
type Issue struct {
	Type        IssueType  `json:"type"`
	Instrument  Instrument `json:"instrument,omitempty"`
	Difficulty  Difficulty `json:"difficulty,omitempty"`
	Description string     `json:"description"`
}

// formatMsTime renders a millisecond offset as [HH:MM:SS.cc] for issue
// descriptions.
func formatMsTime(ms float64) string {
	total := int64(ms)
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("[%02d:%02d:%02d.%02d]",
		total/3600000, (total/60000)%60, (total/1000)%60, (total%1000)/10)
}

const (
	leadingSilenceMs  = 1000
	longTrackMs       = 60000
	longTrackNotes    = 50
	reducedNotesFloor = 20
	brokenNoteMs      = 15
	sustainShadowMs   = 40
	babySustainMs     = 100
)

// FindIssues runs every rule-based check over a normalized chart.
// songLengthMs, when positive, stands in for the note span when judging
// whether a track is long enough to warrant Star Power or activation lanes.
// trackHashes (keyed by track identity) feeds the difficultyNotReduced rule
// and may be nil.
func FindIssues(chart *ParsedChart, songLengthMs float64, trackHashes map[TrackID]string) []Issue {
	var issues []Issue

	issues = append(issues, checkTimeSignatures(chart)...)

	if len(chart.Tracks) == 0 && !chart.HasVocals {
		issues = append(issues, Issue{Type: IssueNoNotes, Description: "This chart has no notes"})
	}

	issues = append(issues, checkDifficulties(chart, trackHashes)...)

	if len(chart.Tempos) == 1 && chart.Tempos[0].BPM == 120 &&
		len(chart.TimeSignatures) == 1 &&
		chart.TimeSignatures[0].Numerator == 4 && chart.TimeSignatures[0].Denominator == 4 {
		issues = append(issues, Issue{
			Type:        IssueIsDefaultBPM,
			Description: "This chart only has the default 120 BPM and 4/4 time signature",
		})
	}

	if len(chart.Sections) == 0 {
		issues = append(issues, Issue{Type: IssueNoSections, Description: "This chart has no sections"})
	}

	issues = append(issues, checkEndEvents(chart)...)

	if ms, ok := firstNoteMs(chart); ok && ms < leadingSilenceMs {
		issues = append(issues, Issue{
			Type:        IssueSmallLeadingSilence,
			Description: fmt.Sprintf("%s The first note is less than %dms into the song", formatMsTime(ms), leadingSilenceMs),
		})
	}

	for _, track := range chart.Tracks {
		issues = append(issues, checkTrack(chart, track, songLengthMs)...)
	}

	return issues
}

// checkTimeSignatures walks a running next-bar tick from 0; markers that
// miss a bar line are flagged and skipped so later markers get a fair
// chance against the surviving grid.
func checkTimeSignatures(chart *ParsedChart) []Issue {
	var issues []Issue
	nextBar := 0.0
	barLen := 0.0
	for _, ts := range chart.TimeSignatures {
		if barLen > 0 {
			for nextBar < float64(ts.Tick) {
				nextBar += barLen
			}
		}
		if float64(ts.Tick) != nextBar {
			issues = append(issues, Issue{
				Type: IssueMisalignedTimeSignature,
				Description: fmt.Sprintf("%s Time signature marker %d/%d does not land on a bar line",
					formatMsTime(ts.MsTime), ts.Numerator, ts.Denominator),
			})
			continue
		}
		barLen = float64(chart.Resolution) * 4 * float64(ts.Numerator) / float64(ts.Denominator)
	}
	return issues
}

func checkDifficulties(chart *ParsedChart, trackHashes map[TrackID]string) []Issue {
	var issues []Issue
	for _, inst := range Instruments {
		var expert *Track
		var others []*Track
		for _, t := range chart.Tracks {
			if t.Instrument != inst {
				continue
			}
			if t.Difficulty == DifficultyExpert {
				expert = t
			} else {
				others = append(others, t)
			}
		}
		if expert == nil && len(others) > 0 {
			issues = append(issues, Issue{
				Type:        IssueNoExpert,
				Instrument:  inst,
				Description: fmt.Sprintf("The %s part has no expert difficulty", inst),
			})
			continue
		}
		if expert == nil || trackHashes == nil {
			continue
		}
		expertHash, ok := trackHashes[TrackID{Instrument: inst, Difficulty: DifficultyExpert}]
		if !ok {
			continue
		}
		for _, t := range others {
			hash, ok := trackHashes[TrackID{Instrument: inst, Difficulty: t.Difficulty}]
			if ok && hash == expertHash && t.NoteCount() > reducedNotesFloor {
				issues = append(issues, Issue{
					Type:        IssueDifficultyNotReduced,
					Instrument:  inst,
					Difficulty:  t.Difficulty,
					Description: fmt.Sprintf("The %s %s chart is identical to expert", t.Difficulty, inst),
				})
			}
		}
	}
	return issues
}

func checkEndEvents(chart *ParsedChart) []Issue {
	var issues []Issue
	var lastNoteTick int64 = -1
	for _, track := range chart.Tracks {
		if n := len(track.NoteEventGroups); n > 0 {
			if tick := track.NoteEventGroups[n-1][0].Tick; tick > lastNoteTick {
				lastNoteTick = tick
			}
		}
	}
	for i, end := range chart.EndEvents {
		if i > 0 {
			issues = append(issues, Issue{
				Type:        IssueBadEndEvent,
				Description: fmt.Sprintf("%s Multiple end events; only the first can be valid", formatMsTime(end.MsTime)),
			})
			continue
		}
		if lastNoteTick >= 0 && end.Tick < lastNoteTick {
			issues = append(issues, Issue{
				Type:        IssueBadEndEvent,
				Description: fmt.Sprintf("%s The end event is before the last note", formatMsTime(end.MsTime)),
			})
		}
	}
	return issues
}

func firstNoteMs(chart *ParsedChart) (float64, bool) {
	found := false
	min := 0.0
	for _, track := range chart.Tracks {
		if len(track.NoteEventGroups) == 0 {
			continue
		}
		ms := track.NoteEventGroups[0][0].MsTime
		if !found || ms < min {
			min = ms
			found = true
		}
	}
	return min, found
}

func checkTrack(chart *ParsedChart, track *Track, songLengthMs float64) []Issue {
	var issues []Issue
	isDrums := TypeOf(track.Instrument) == TypeDrums

	spanMs := songLengthMs
	if spanMs <= 0 && len(track.NoteEventGroups) > 1 {
		first := track.NoteEventGroups[0][0].MsTime
		last := track.NoteEventGroups[len(track.NoteEventGroups)-1][0].MsTime
		spanMs = last - first
	}

	if !isDrums && len(track.StarPowerSections) == 0 &&
		track.NoteCount() > longTrackNotes && spanMs > longTrackMs {
		issues = append(issues, Issue{
			Type:        IssueNoStarPower,
			Instrument:  track.Instrument,
			Difficulty:  track.Difficulty,
			Description: fmt.Sprintf("The %s %s chart has no Star Power", track.Difficulty, track.Instrument),
		})
	}

	if isDrums && len(track.DrumFreestyleSections) == 0 && len(track.StarPowerSections) > 0 &&
		track.NoteCount() > longTrackNotes && spanMs > longTrackMs {
		issues = append(issues, Issue{
			Type:        IssueNoDrumActivationLanes,
			Instrument:  track.Instrument,
			Difficulty:  track.Difficulty,
			Description: fmt.Sprintf("The %s %s chart has no drum activation lanes", track.Difficulty, track.Instrument),
		})
	}

	emptyPhrase := func(typ IssueType, what string, ph Phrase) Issue {
		return Issue{
			Type:        typ,
			Instrument:  track.Instrument,
			Difficulty:  track.Difficulty,
			Description: fmt.Sprintf("%s %s phrase contains no notes", formatMsTime(ph.MsTime), what),
		}
	}
	for _, ph := range track.StarPowerSections {
		if !phraseHasNotes(ph, track) {
			issues = append(issues, emptyPhrase(IssueEmptyStarPower, "Star Power", ph))
		}
	}
	for _, ph := range track.SoloSections {
		if !phraseHasNotes(ph, track) {
			issues = append(issues, emptyPhrase(IssueEmptySoloSection, "Solo", ph))
		}
	}
	for _, lane := range track.FlexLanes {
		if !phraseHasNotes(lane.Phrase, track) {
			issues = append(issues, emptyPhrase(IssueEmptyFlexLane, "Lane", lane.Phrase))
		}
	}
	for _, ph := range track.RejectedStarPowerSections {
		issues = append(issues, Issue{
			Type:        IssueBadStarPower,
			Instrument:  track.Instrument,
			Difficulty:  track.Difficulty,
			Description: fmt.Sprintf("%s Star Power phrase was rejected by the legacy multiplier rules", formatMsTime(ph.MsTime)),
		})
	}

	issues = append(issues, checkNoteRules(track)...)
	return issues
}

func checkNoteRules(track *Track) []Issue {
	var issues []Issue
	instType := TypeOf(track.Instrument)

	trackIssue := func(typ IssueType, ms float64, format string, args ...interface{}) {
		issues = append(issues, Issue{
			Type:        typ,
			Instrument:  track.Instrument,
			Difficulty:  track.Difficulty,
			Description: formatMsTime(ms) + " " + fmt.Sprintf(format, args...),
		})
	}

	// per-color shadow windows left behind by sustain tails
	type shadow struct{ start float64 }
	shadows := make(map[NoteType]shadow)

	var prevGroup []NoteEvent
	for gi, group := range track.NoteEventGroups {
		issues = append(issues, checkGroupShape(track, group)...)

		if prevGroup != nil && !groupHasOpen(group) && !groupHasOpen(prevGroup) {
			delta := group[0].MsTime - prevGroup[0].MsTime
			if delta > 0 && delta <= brokenNoteMs {
				trackIssue(IssueBrokenNote, group[0].MsTime,
					"Note gap of %.1fms is too small to play as separate notes", delta)
			}
		}

		for _, n := range group {
			if s, ok := shadows[n.Type]; ok {
				if n.MsTime > s.start && n.MsTime < s.start+sustainShadowMs {
					trackIssue(IssueBadSustainGap, n.MsTime,
						"Note starts %.1fms after the previous sustain on the same lane", n.MsTime-s.start)
				}
			}
		}
		for _, n := range group {
			if n.MsLength > 0 {
				shadows[n.Type] = shadow{start: n.MsTime + n.MsLength}
			}
		}

		if instType != TypeDrums {
			for _, n := range group {
				if n.MsLength > 0 && n.MsLength < babySustainMs && !nextGroupIsOpenSlide(track, gi) {
					trackIssue(IssueBabySustain, n.MsTime,
						"Sustain of %.1fms is too short to be intentional", n.MsLength)
				}
			}
		}

		prevGroup = group
	}
	return issues
}

func groupHasOpen(group []NoteEvent) bool {
	for _, n := range group {
		if n.Type == NoteOpen {
			return true
		}
	}
	return false
}

// nextGroupIsOpenSlide reports whether the group after gi is a lone open
// note played as a hammer-on or tap, which legitimizes a short sustain
// sliding into it.
func nextGroupIsOpenSlide(track *Track, gi int) bool {
	if gi+1 >= len(track.NoteEventGroups) {
		return false
	}
	next := track.NoteEventGroups[gi+1]
	return len(next) == 1 && next[0].Type == NoteOpen &&
		next[0].Flags&(FlagHopo|FlagTap) != 0
}

// checkGroupShape applies the per-difficulty forbidden-note and
// invalid-chord tables to one group.
func checkGroupShape(track *Track, group []NoteEvent) []Issue {
	var issues []Issue
	instType := TypeOf(track.Instrument)
	ms := group[0].MsTime

	flag := func(typ IssueType, format string, args ...interface{}) {
		issues = append(issues, Issue{
			Type:        typ,
			Instrument:  track.Instrument,
			Difficulty:  track.Difficulty,
			Description: formatMsTime(ms) + " " + fmt.Sprintf(format, args...),
		})
	}

	var nonKick, kicks int
	var whites, blacks int
	var colors = make(map[NoteType]bool)
	doubleKick := false
	for _, n := range group {
		colors[n.Type] = true
		switch {
		case n.Type == NoteKick:
			kicks++
			if n.Flags&FlagDoubleKick != 0 {
				doubleKick = true
			}
		case n.Type >= NoteWhite1 && n.Type <= NoteWhite3:
			whites++
			nonKick++
		case n.Type >= NoteBlack1 && n.Type <= NoteBlack3:
			blacks++
			nonKick++
		default:
			nonKick++
		}
	}

	switch instType {
	case TypeFiveFret:
		if (track.Difficulty == DifficultyMedium || track.Difficulty == DifficultyEasy) && colors[NoteOrange] {
			flag(IssueDifficultyForbiddenNote, "Orange notes are not allowed on %s", track.Difficulty)
		}
		if len(group) >= 5 && !colors[NoteOpen] {
			flag(IssueInvalidChord, "Five-note chords are not playable")
		}
	case TypeSixFret:
		if track.Difficulty == DifficultyHard && len(group) >= 3 && whites > 0 && blacks > 0 {
			flag(IssueDifficultyForbiddenNote, "Three-note chords mixing white and black are not allowed on hard")
		}
		if len(group) >= 3 && colors[NoteBlack2] && colors[NoteWhite2] &&
			(colors[NoteBlack1] || colors[NoteWhite1]) {
			flag(IssueInvalidChord, "This chord shape cannot be fretted")
		}
	case TypeDrums:
		if track.Difficulty != DifficultyExpert && doubleKick {
			flag(IssueDifficultyForbiddenNote, "Double kick notes are only allowed on expert")
		}
		if track.Difficulty == DifficultyEasy && kicks > 0 && nonKick >= 2 {
			flag(IssueDifficultyForbiddenNote, "Kick plus chord is not allowed on easy drums")
		}
		if nonKick >= 3 {
			flag(IssueInvalidChord, "More than two pads at once is not playable")
		}
	}

	return issues
}
