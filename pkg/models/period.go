package models

import (
	"fmt"
	"time"
)

// Period identifies one monthly dump.
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// NewPeriod validates year and month.
func NewPeriod(year, month int) (Period, error) {
	if year < 2000 || year > 9999 {
		return Period{}, fmt.Errorf("invalid year %d", year)
	}
	if month < 1 || month > 12 {
		return Period{}, fmt.Errorf("invalid month %d", month)
	}
	return Period{Year: year, Month: month}, nil
}

// PreviousPeriod returns the month before t. Dumps are published after the
// month closes, so this is the default sync target.
func PreviousPeriod(t time.Time) Period {
	prev := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	return Period{Year: prev.Year(), Month: int(prev.Month())}
}

// DumpName is the deterministic file name for the period, e.g. dump_2024_01.xml.
func (p Period) DumpName() string {
	return fmt.Sprintf("dump_%04d_%02d.xml", p.Year, p.Month)
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}
