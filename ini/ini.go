// Package ini reads the song.ini metadata file that accompanies a chart and
// extracts the modifier values the chart parser recognizes. Unknown keys are
// ignored; the format is a single [song] (or [Song]) section of key = value
// lines.
package ini

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/sceneroot/chartscan"
)

// Metadata is the full key/value bag from song.ini, keys lowercased.
type Metadata map[string]string

// Parse reads song.ini text and returns both the raw metadata and the
// recognized chart modifiers.
func Parse(text string) (Metadata, chartscan.IniChartModifiers) {
	meta := make(Metadata)
	mods := chartscan.DefaultModifiers()

	inSong := false
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		line = strings.TrimPrefix(line, "\ufeff")
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			inSong = strings.EqualFold(line, "[song]")
			continue
		}
		if !inSong {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(parts[0]))
		value := strings.TrimSpace(parts[1])
		meta[key] = value
	}

	if v, ok := meta["song_length"]; ok {
		mods.SongLength = atoiOr(v, 0)
	}
	if v, ok := meta["hopo_frequency"]; ok {
		mods.HopoFrequency = atoiOr(v, 0)
	}
	if v, ok := meta["eighthnote_hopo"]; ok {
		mods.EighthNoteHopo = parseBool(v)
	}
	if v, ok := meta["multiplier_note"]; ok {
		mods.MultiplierNote = atoiOr(v, 0)
	}
	if v, ok := meta["sustain_cutoff_threshold"]; ok {
		mods.SustainCutoffThreshold = atoiOr(v, -1)
	}
	if v, ok := meta["chord_snap_threshold"]; ok {
		mods.ChordSnapThreshold = atoiOr(v, 0)
	}
	if v, ok := meta["five_lane_drums"]; ok {
		mods.FiveLaneDrums = parseBool(v)
	}
	if v, ok := meta["pro_drums"]; ok {
		mods.ProDrums = parseBool(v)
	}

	return meta, mods
}

func atoiOr(s string, fallback int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return fallback
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
