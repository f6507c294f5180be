package export

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// MaxNameLength caps sanitized file name stems, in runes.
const MaxNameLength = 64

const fallbackName = "patient"

// Sanitize turns a display name into a file name stem: whitespace runs become
// a single underscore, anything outside [A-Za-z0-9._-] is dropped and the
// result is capped at MaxNameLength. An empty result becomes "patient".
func Sanitize(name string) string {
	var b strings.Builder
	inSpace := false
	n := 0
	for _, r := range strings.TrimSpace(name) {
		if n >= MaxNameLength {
			break
		}
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte('_')
				n++
			}
			inSpace = true
			continue
		}
		if isNameRune(r) {
			b.WriteRune(r)
			n++
			inSpace = false
		}
	}
	out := strings.Trim(b.String(), "_")
	if strings.Trim(out, ".") == "" {
		return fallbackName
	}
	return out
}

func isNameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.', r == '-', r == '_':
		return true
	}
	return false
}

// File names of the single-patient artifacts.
func csvDownloadName(stem string) string    { return stem + "_data.csv" }
func reportDownloadName(stem string) string { return stem + "_report.pdf" }
func zipDownloadName(stem string) string    { return stem + "_complete_export.zip" }

// CohortArchiveName is the timestamped name of a cohort archive.
func CohortArchiveName(at time.Time) string {
	return fmt.Sprintf("doctor_analysis_export_%s.zip", at.UTC().Format("20060102_150405"))
}

func cohortCSVName(at time.Time) string {
	return fmt.Sprintf("comprehensive_patient_data_%s.csv", at.UTC().Format("20060102_150405"))
}

// nameSet hands out unique file names within one archive folder. The second
// use of a name gets "_2" before the extension, the third "_3" and so on.
type nameSet map[string]int

func (s nameSet) unique(stem, ext string) string {
	key := strings.ToLower(stem + ext)
	s[key]++
	if n := s[key]; n > 1 {
		name := fmt.Sprintf("%s_%d", stem, n)
		// "a_2" may itself already be taken by an earlier stem.
		return s.unique(name, ext)
	}
	return stem + ext
}
