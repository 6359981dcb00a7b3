package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// WriteFile writes a markdown report named after the analysis time and id.
func WriteFile(content, outputDir string, analyzedAt time.Time, id string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(outputDir, fileStem(analyzedAt, id)+".md")
	return path, os.WriteFile(path, []byte(content), 0644)
}

// WriteEmailDraftFile writes the report as a multipart .eml draft.
func WriteEmailDraftFile(content, outputDir string, analyzedAt time.Time, id, subject string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", err
	}
	if strings.TrimSpace(subject) == "" {
		subject = fmt.Sprintf("TestPilot report %s", analyzedAt.UTC().Format("2006-01-02 15:04"))
	}
	path := filepath.Join(outputDir, fileStem(analyzedAt, id)+".eml")
	return path, os.WriteFile(path, []byte(buildEML(subject, content)), 0644)
}

func fileStem(analyzedAt time.Time, id string) string {
	short := strings.TrimLeft(sanitizeFilename(id), ".")
	if len(short) > 8 {
		short = short[:8]
	}
	stem := "testpilot_" + analyzedAt.UTC().Format("20060102-150405")
	if short != "" {
		stem += "_" + short
	}
	return stem
}

func sanitizeFilename(s string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_", " ", "_")
	return replacer.Replace(s)
}
