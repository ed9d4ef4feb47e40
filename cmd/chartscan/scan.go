package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/sceneroot/chartscan"
	"github.com/sceneroot/chartscan/ini"
	"github.com/sceneroot/chartscan/sng"
)

// TrackReport is the per-track slice of a scan report.
type TrackReport struct {
	Instrument chartscan.Instrument `json:"instrument"`
	Difficulty chartscan.Difficulty `json:"difficulty"`
	NoteCount  int                  `json:"noteCount"`
	Hash       string               `json:"hash"`
}

// Report is the result of scanning one chart source.
type Report struct {
	Path     string            `json:"path,omitempty"`
	Format   chartscan.Format  `json:"format"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Tracks   []TrackReport     `json:"tracks"`
	Issues   []chartscan.Issue `json:"issues"`
}

// scanSource parses chart bytes, hashes every track, and runs the issue
// detector.
func scanSource(data []byte, format chartscan.Format, mods chartscan.IniChartModifiers) (*Report, error) {
	chart, err := chartscan.ParseChart(data, format, mods)
	if err != nil {
		return nil, err
	}

	hashes, err := chartscan.HashAllTracks(chart)
	if err != nil {
		return nil, err
	}

	report := &Report{Format: format, Metadata: chart.Metadata}
	for _, track := range chart.Tracks {
		id := chartscan.TrackID{Instrument: track.Instrument, Difficulty: track.Difficulty}
		report.Tracks = append(report.Tracks, TrackReport{
			Instrument: track.Instrument,
			Difficulty: track.Difficulty,
			NoteCount:  track.NoteCount(),
			Hash:       hashes[id],
		})
	}
	report.Issues = chartscan.FindIssues(chart, float64(mods.SongLength), hashes)
	return report, nil
}

// scanPath resolves a path to chart bytes plus modifiers. Directories are
// searched for notes.chart / notes.mid plus song.ini; .sng packages are
// opened in memory.
func scanPath(path string) (*Report, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return scanFolder(path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".sng":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return scanSng(path, data)
	case ".chart":
		return scanFile(path, chartscan.FormatChart, siblingMods(path))
	case ".mid", ".midi":
		return scanFile(path, chartscan.FormatMid, siblingMods(path))
	}
	return nil, fmt.Errorf("unrecognized chart file: %s", path)
}

func scanFile(path string, format chartscan.Format, mods chartscan.IniChartModifiers) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	report, err := scanSource(data, format, mods)
	if err != nil {
		return nil, err
	}
	report.Path = path
	return report, nil
}

func scanFolder(dir string) (*Report, error) {
	mods := chartscan.DefaultModifiers()
	if data, err := os.ReadFile(filepath.Join(dir, "song.ini")); err == nil {
		_, mods = ini.Parse(string(data))
	}

	if _, err := os.Stat(filepath.Join(dir, "notes.chart")); err == nil {
		return scanFile(filepath.Join(dir, "notes.chart"), chartscan.FormatChart, mods)
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.mid")); err == nil {
		return scanFile(filepath.Join(dir, "notes.mid"), chartscan.FormatMid, mods)
	}
	return nil, fmt.Errorf("no notes.chart or notes.mid in %s", dir)
}

func scanSng(path string, data []byte) (*Report, error) {
	pkg, err := sng.Read(data)
	if err != nil {
		return nil, err
	}

	mods := chartscan.DefaultModifiers()
	if iniData, err := pkg.Open("song.ini"); err == nil {
		_, mods = ini.Parse(string(iniData))
	}

	var chartData []byte
	format := chartscan.FormatChart
	if chartData, err = pkg.Open("notes.chart"); err != nil {
		chartData, err = pkg.Open("notes.mid")
		if err != nil {
			return nil, fmt.Errorf("no chart in sng package %s", path)
		}
		format = chartscan.FormatMid
	}

	report, err := scanSource(chartData, format, mods)
	if err != nil {
		return nil, err
	}
	report.Path = path
	if report.Metadata == nil {
		report.Metadata = make(map[string]string)
	}
	for k, v := range pkg.Metadata {
		if _, exists := report.Metadata[k]; !exists {
			report.Metadata[k] = v
		}
	}
	return report, nil
}

// siblingMods loads song.ini from the file's directory when present.
func siblingMods(path string) chartscan.IniChartModifiers {
	mods := chartscan.DefaultModifiers()
	iniPath := filepath.Join(filepath.Dir(path), "song.ini")
	data, err := os.ReadFile(iniPath)
	if err != nil {
		return mods
	}
	_, mods = ini.Parse(string(data))
	log.Printf("Using modifiers from %s", iniPath)
	return mods
}
