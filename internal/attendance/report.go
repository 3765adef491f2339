package attendance

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/facegate/rollcall/internal/store"
)

// ReportFilter narrows the absentee roster to one group. Empty fields
// match everything. Values compare case- and diacritic-insensitively, so
// "sénior" filters match a "Senior" house.
type ReportFilter struct {
	Class   string `json:"class,omitempty"`
	Section string `json:"section,omitempty"`
	House   string `json:"house,omitempty"`
}

// AbsenteeReport pairs the day's sighted names with the filtered roster
// members who never showed.
type AbsenteeReport struct {
	Date         string       `json:"date"`
	Present      []string     `json:"present"`
	Absent       []store.User `json:"absent"`
	PresentCount int          `json:"present_count"`
	AbsentCount  int          `json:"absent_count"`
	TotalInScope int          `json:"total_in_scope"`
}

// Absentees splits the filtered roster for the given day into present and
// absent. Every roster member in scope lands in exactly one bucket, so
// PresentCount + AbsentCount always equals TotalInScope.
func Absentees(roster []store.User, presentNames []string, day string, f ReportFilter) AbsenteeReport {
	present := make(map[string]struct{}, len(presentNames))
	for _, name := range presentNames {
		present[name] = struct{}{}
	}

	report := AbsenteeReport{
		Date:    day,
		Present: []string{},
		Absent:  []store.User{},
	}
	for _, user := range roster {
		if !matchesFilter(user.Metadata, f) {
			continue
		}
		report.TotalInScope++
		if _, ok := present[user.Name]; ok {
			report.Present = append(report.Present, user.Name)
		} else {
			report.Absent = append(report.Absent, user)
		}
	}
	report.PresentCount = len(report.Present)
	report.AbsentCount = len(report.Absent)
	return report
}

func matchesFilter(md store.Metadata, f ReportFilter) bool {
	return matchesValue(md.StudentClass, f.Class) &&
		matchesValue(md.Section, f.Section) &&
		matchesValue(md.House, f.House)
}

func matchesValue(have, want string) bool {
	if want == "" {
		return true
	}
	return normalizeValue(have) == normalizeValue(want)
}

// removeDiacritics strips combining marks, e.g. "Jiří" -> "Jiri".
func removeDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

func normalizeValue(s string) string {
	return strings.ToLower(removeDiacritics(strings.TrimSpace(s)))
}
