package attendance

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"
)

// StatusPresent is the only status the ledger ever writes. Absence is
// derived by reports, never recorded.
const StatusPresent = "Present"

var csvHeader = []string{"Date", "Time", "Name", "Confidence", "Status"}

// Record is one attendance row.
type Record struct {
	Date       string  `json:"date"`
	Time       string  `json:"time"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Status     string  `json:"status"`
}

// Ledger is an append-only attendance log backed by a CSV file. It keeps
// an in-memory day -> names index so the once-per-day check never rereads
// the file.
type Ledger struct {
	mu      sync.Mutex
	path    string
	present map[string]map[string]struct{}
}

// NewLedger opens the ledger at path, replaying any existing rows into
// the presence index. The file is created on the first write, not here.
func NewLedger(path string) (*Ledger, error) {
	l := &Ledger{
		path:    path,
		present: make(map[string]map[string]struct{}),
	}

	records, err := l.readAll()
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		l.mark(rec.Date, rec.Name)
	}
	return l, nil
}

func (l *Ledger) mark(day, name string) {
	names, ok := l.present[day]
	if !ok {
		names = make(map[string]struct{})
		l.present[day] = names
	}
	names[name] = struct{}{}
}

// RecordIfAbsent appends a presence row for the name unless one already
// exists for the same calendar day. Reports whether a row was written.
// A write failure leaves the presence index unchanged, so the next
// sighting retries.
func (l *Ledger) RecordIfAbsent(name string, confidence float64, now time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	day := now.Format("2006-01-02")
	if _, ok := l.present[day][name]; ok {
		return false, nil
	}

	row := []string{
		day,
		now.Format("15:04:05"),
		name,
		fmt.Sprintf("%.3f", confidence),
		StatusPresent,
	}
	if err := l.appendRow(row); err != nil {
		return false, err
	}

	l.mark(day, name)
	return true, nil
}

// appendRow opens the file for append, writing the header first when the
// file is new or empty.
func (l *Ledger) appendRow(row []string) error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("opening attendance log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("checking attendance log: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(csvHeader); err != nil {
			return fmt.Errorf("writing attendance header: %w", err)
		}
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("writing attendance row: %w", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing attendance log: %w", err)
	}
	return nil
}

// PresentToday returns the names recorded on the given day, sorted.
func (l *Ledger) PresentToday(now time.Time) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return sortedSet(l.present[now.Format("2006-01-02")])
}

// AttendeesOn returns the distinct names recorded for a specific day
// string in YYYY-MM-DD form, sorted. It scans the log file rather than
// the presence index, so past days stay reportable after the index is
// pruned; the index only serves the same-day dedup gate.
func (l *Ledger) AttendeesOn(day string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.readAll()
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{})
	for _, rec := range records {
		if rec.Date == day {
			set[rec.Name] = struct{}{}
		}
	}
	return sortedSet(set), nil
}

// IsPresent reports whether the name already has a row for the day.
func (l *Ledger) IsPresent(name string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.present[now.Format("2006-01-02")][name]
	return ok
}

// Records reads every row from the ledger file, oldest first.
func (l *Ledger) Records() ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readAll()
}

// Stats summarizes the full ledger, including today's roll call.
type Stats struct {
	TotalRecords  int            `json:"total_records"`
	UniqueDays    int            `json:"unique_days"`
	UniqueNames   int            `json:"unique_names"`
	CountsPerDay  map[string]int `json:"counts_per_day"`
	AvgConfidence float64        `json:"avg_confidence"`
	TodayCount    int            `json:"today_count"`
	TodayNames    []string       `json:"today_names"`
}

// Summarize scans the whole ledger file and aggregates per-day counts.
// The day of now is reported inline as today's attendance.
func (l *Ledger) Summarize(now time.Time) (Stats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.readAll()
	if err != nil {
		return Stats{}, err
	}

	today := now.Format("2006-01-02")
	todayNames := make(map[string]struct{})

	stats := Stats{CountsPerDay: make(map[string]int)}
	names := make(map[string]struct{})
	var confidenceSum float64
	for _, rec := range records {
		stats.TotalRecords++
		stats.CountsPerDay[rec.Date]++
		names[rec.Name] = struct{}{}
		confidenceSum += rec.Confidence
		if rec.Date == today {
			todayNames[rec.Name] = struct{}{}
		}
	}
	stats.UniqueDays = len(stats.CountsPerDay)
	stats.UniqueNames = len(names)
	if stats.TotalRecords > 0 {
		stats.AvgConfidence = confidenceSum / float64(stats.TotalRecords)
	}
	stats.TodayNames = sortedSet(todayNames)
	stats.TodayCount = len(stats.TodayNames)
	return stats, nil
}

// PrunePresenceBefore drops in-memory presence sets for days before the
// cutoff (YYYY-MM-DD) and returns how many days were dropped. The file
// keeps its rows; only the dedup index shrinks.
func (l *Ledger) PrunePresenceBefore(cutoff string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	dropped := 0
	for day := range l.present {
		if day < cutoff {
			delete(l.present, day)
			dropped++
		}
	}
	return dropped
}

// PruneBefore drops rows older than the cutoff day (YYYY-MM-DD) by
// rewriting the file, and returns how many rows were removed. Rows on
// the cutoff day itself are kept.
func (l *Ledger) PruneBefore(cutoff string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.readAll()
	if err != nil {
		return 0, err
	}

	kept := records[:0]
	for _, rec := range records {
		if rec.Date >= cutoff {
			kept = append(kept, rec)
		}
	}
	removed := len(records) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	if err := l.rewrite(kept); err != nil {
		return 0, err
	}

	l.present = make(map[string]map[string]struct{})
	for _, rec := range kept {
		l.mark(rec.Date, rec.Name)
	}
	return removed, nil
}

func (l *Ledger) rewrite(records []Record) error {
	tmp := l.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("creating attendance log: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return fmt.Errorf("writing attendance header: %w", err)
	}
	for _, rec := range records {
		row := []string{rec.Date, rec.Time, rec.Name, fmt.Sprintf("%.3f", rec.Confidence), rec.Status}
		if err := w.Write(row); err != nil {
			f.Close()
			return fmt.Errorf("writing attendance row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flushing attendance log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing attendance log: %w", err)
	}
	return os.Rename(tmp, l.path)
}

// readAll parses the ledger file. Missing file means an empty ledger.
// Rows with too few fields or an unparsable confidence are skipped.
func (l *Ledger) readAll() ([]Record, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening attendance log: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var records []Record
	first := true
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading attendance log: %w", err)
		}
		if first {
			first = false
			if len(row) > 0 && row[0] == csvHeader[0] {
				continue
			}
		}
		if len(row) < 5 {
			continue
		}

		var confidence float64
		if _, err := fmt.Sscanf(row[3], "%f", &confidence); err != nil {
			continue
		}
		records = append(records, Record{
			Date:       row[0],
			Time:       row[1],
			Name:       row[2],
			Confidence: confidence,
			Status:     row[4],
		})
	}
	return records, nil
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
