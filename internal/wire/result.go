package wire

import (
	"bufio"
	"strings"
)

// OutputMarker prefixes the stdout line on which the renderer names the file
// it produced.
const OutputMarker = "OUTPUT_FILENAME:"

// RenderResult is written by the renderer to the result path it was given.
type RenderResult struct {
	OutputPath       string  `json:"outputPath"`
	OutputFilename   string  `json:"outputFilename"`
	DurationInFrames int     `json:"durationInFrames"`
	DurationSeconds  float64 `json:"durationSeconds"`
	Width            int     `json:"width"`
	Height           int     `json:"height"`
	ElapsedMs        int64   `json:"elapsedMs"`
}

// ParseOutputMarker scans renderer stdout for the last OutputMarker line and
// returns the filename it carries.
func ParseOutputMarker(stdout string) (string, bool) {
	var name string
	found := false
	sc := bufio.NewScanner(strings.NewReader(stdout))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if i := strings.Index(line, OutputMarker); i >= 0 {
			if v := strings.TrimSpace(line[i+len(OutputMarker):]); v != "" {
				name = v
				found = true
			}
		}
	}
	return name, found
}
