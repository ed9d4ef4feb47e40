package chartscan

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"

	"lukechampine.com/blake3"
)

// btrackVersion is the frozen layout version. Record payloads are
// little-endian; the magic is written big-endian. Neither the note-type nor
// the flag numbering may ever change, since both feed the hash preimage that
// existing leaderboards key on.
const btrackVersion uint32 = 20240320

var btrackMagic = [4]byte{0x43, 0x48, 0x4E, 0x46} // "CHNF"

// SerializeTrack packs a normalized track into the BTRACK byte layout used
// as the hash preimage.
func SerializeTrack(chart *ParsedChart, instrument Instrument, difficulty Difficulty) ([]byte, error) {
	track := chart.GetTrack(instrument, difficulty)
	if track == nil {
		return nil, fmt.Errorf("no %s %s track in chart", difficulty, instrument)
	}

	buf := &bytes.Buffer{}
	buf.Write(btrackMagic[:])
	writeU32(buf, btrackVersion)
	writeU32(buf, uint32(chart.Resolution))

	tempos := dedupeTempos(chart.Tempos)
	writeU32(buf, uint32(len(tempos)))
	for _, t := range tempos {
		writeI64(buf, t.Tick)
		writeF64(buf, t.BPM)
	}

	timeSigs := dedupeTimeSigs(chart.TimeSignatures)
	writeU32(buf, uint32(len(timeSigs)))
	for _, ts := range timeSigs {
		writeI64(buf, ts.Tick)
		writeU32(buf, uint32(ts.Numerator))
		writeU32(buf, uint32(ts.Denominator))
	}

	starPower := prunePhrases(track.StarPowerSections, track)
	writeU32(buf, uint32(len(starPower)))
	for _, ph := range starPower {
		writeI64(buf, ph.Tick)
		writeI64(buf, ph.Length)
	}

	solos := prunePhrases(track.SoloSections, track)
	writeU32(buf, uint32(len(solos)))
	for _, ph := range solos {
		writeI64(buf, ph.Tick)
		writeI64(buf, ph.Length)
	}

	var flexes []FlexLane
	for _, lane := range track.FlexLanes {
		if phraseHasNotes(lane.Phrase, track) {
			flexes = append(flexes, lane)
		}
	}
	writeU32(buf, uint32(len(flexes)))
	for _, lane := range flexes {
		writeI64(buf, lane.Tick)
		writeI64(buf, lane.Length)
		writeBool(buf, lane.IsDouble)
	}

	var freestyles []FreestyleSection
	for _, fs := range track.DrumFreestyleSections {
		if phraseHasNotes(fs.Phrase, track) {
			freestyles = append(freestyles, fs)
		}
	}
	writeU32(buf, uint32(len(freestyles)))
	for _, fs := range freestyles {
		writeI64(buf, fs.Tick)
		writeI64(buf, fs.Length)
		writeBool(buf, fs.IsCoda)
	}

	noteCount := 0
	for _, group := range track.NoteEventGroups {
		noteCount += len(group)
	}
	writeU32(buf, uint32(noteCount))
	for _, group := range track.NoteEventGroups {
		for _, n := range group {
			writeI64(buf, n.Tick)
			writeI64(buf, n.Length)
			writeU32(buf, uint32(n.Type))
			writeU32(buf, uint32(n.Flags))
		}
	}

	return buf.Bytes(), nil
}

// HashTrack serializes a track and returns the base64url BLAKE3 digest along
// with the serialized bytes.
func HashTrack(chart *ParsedChart, instrument Instrument, difficulty Difficulty) (string, []byte, error) {
	data, err := SerializeTrack(chart, instrument, difficulty)
	if err != nil {
		return "", nil, err
	}
	digest := blake3.Sum256(data)
	return base64.RawURLEncoding.EncodeToString(digest[:]), data, nil
}

// dedupeTempos keeps only the last marker defined at each tick.
func dedupeTempos(tempos []TempoMarker) []TempoMarker {
	var out []TempoMarker
	for _, t := range tempos {
		if n := len(out); n > 0 && out[n-1].Tick == t.Tick {
			out[n-1] = t
			continue
		}
		out = append(out, t)
	}
	return out
}

func dedupeTimeSigs(timeSigs []TimeSignature) []TimeSignature {
	var out []TimeSignature
	for _, ts := range timeSigs {
		if n := len(out); n > 0 && out[n-1].Tick == ts.Tick {
			out[n-1] = ts
			continue
		}
		out = append(out, ts)
	}
	return out
}

// phraseHasNotes reports whether any note starts inside the phrase's
// half-open window. Zero-length phrases still cover their own tick.
func phraseHasNotes(ph Phrase, track *Track) bool {
	length := ph.Length
	if length < 1 {
		length = 1
	}
	end := ph.Tick + length
	for _, group := range track.NoteEventGroups {
		if group[0].Tick >= end {
			break
		}
		if group[0].Tick >= ph.Tick {
			return true
		}
	}
	return false
}

// prunePhrases drops phrases that cover no notes; an empty phrase is
// reported by the issue detector but never hashed.
func prunePhrases(phrases []Phrase, track *Track) []Phrase {
	var out []Phrase
	for _, ph := range phrases {
		if phraseHasNotes(ph, track) {
			out = append(out, ph)
		}
	}
	return out
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeI64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	buf.Write(b[:])
}

func writeF64(buf *bytes.Buffer, v float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	buf.Write(b[:])
}

func writeBool(buf *bytes.Buffer, v bool) {
	if v {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}
