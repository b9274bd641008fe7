package main

import (
	"flag"
	"fmt"
	"os"

	"posture-monitor/internal/watch"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	server := flag.String("server", envOr("POSTURE_SERVER", "http://localhost:5000"), "posture-monitor base URL")
	streamURL := flag.String("url", "", "camera stream URL (rtsp://, http://, https://)")
	file := flag.String("file", "", "local video file to upload")
	patientID := flag.String("patient-id", "", "patient id attached to alerts")
	patientName := flag.String("patient-name", "", "patient name attached to alerts")
	hold := flag.Float64("hold", 5, "hold threshold in seconds (display only)")
	flag.Parse()

	if (*streamURL == "") == (*file == "") {
		fmt.Fprintln(os.Stderr, "posture-watch: exactly one of -url or -file is required")
		flag.Usage()
		os.Exit(2)
	}

	target := watch.Target{
		URL:         *streamURL,
		File:        *file,
		PatientID:   *patientID,
		PatientName: *patientName,
	}
	model := watch.NewModel(watch.NewStreamClient(*server), target, *hold)
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "posture-watch: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
