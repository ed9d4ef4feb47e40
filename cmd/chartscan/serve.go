package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/sceneroot/chartscan"
	"github.com/sceneroot/chartscan/ini"
)

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a chart-scanning HTTP endpoint",
	Long: `Serves POST /v1/scan, which accepts a multipart upload with a "chart"
file (.chart or .mid) and an optional "ini" file (song.ini) and responds
with the JSON scan report.`,
	Run: func(cmd *cobra.Command, args []string) {
		serve()
	},
}

func serve() {
	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc("/v1/scan", handleScan).Methods("POST")

	handler := cors.Default().Handler(router)
	log.Printf("Listening on %s", serveAddr)
	log.Fatal(http.ListenAndServe(serveAddr, handler))
}

func handleScan(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		http.Error(w, "could not parse multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("chart")
	if err != nil {
		http.Error(w, `missing "chart" file field`, http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "reading chart upload: "+err.Error(), http.StatusBadRequest)
		return
	}

	var format chartscan.Format
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".chart":
		format = chartscan.FormatChart
	case ".mid", ".midi":
		format = chartscan.FormatMid
	default:
		http.Error(w, fmt.Sprintf("unrecognized chart extension on %q", header.Filename), http.StatusBadRequest)
		return
	}

	mods := chartscan.DefaultModifiers()
	if iniFile, _, err := r.FormFile("ini"); err == nil {
		defer iniFile.Close()
		if iniData, err := io.ReadAll(iniFile); err == nil {
			_, mods = ini.Parse(string(iniData))
		}
	}

	report, err := scanSource(data, format, mods)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	report.Path = header.Filename

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}
