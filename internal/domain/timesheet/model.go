package timesheet

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the wire and map-key format for calendar dates.
const DateLayout = "2006-01-02"

// TimeLayout is the format of every time-of-day label, e.g. "09:00 AM".
const TimeLayout = "03:04 PM"

// Slot is one doctor's availability atom. Date carries only a calendar day.
type Slot struct {
	EmployeeID int64
	Date       time.Time
	Time       string
}

func (s Slot) key() slotKey {
	return slotKey{date: s.Date.Format(DateLayout), time: s.Time}
}

func (s Slot) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		EmployeeID int64  `json:"employee_id"`
		Date       string `json:"date"`
		Time       string `json:"time"`
	}{s.EmployeeID, s.Date.Format(DateLayout), s.Time})
}

type slotKey struct {
	date string
	time string
}

// State is the display state of one grid cell.
type State string

const (
	StateEmpty     State = "Empty"
	StateSelected  State = "Selected"
	StateCommitted State = "Committed"
)

// Labels is an ordered, immutable set of time-of-day labels.
type Labels struct {
	list  []string
	index map[string]int
}

// NewLabels validates and indexes labels in the given order.
func NewLabels(labels ...string) (Labels, error) {
	l := Labels{list: make([]string, 0, len(labels)), index: make(map[string]int, len(labels))}
	for _, label := range labels {
		if _, err := time.Parse(TimeLayout, label); err != nil {
			return Labels{}, fmt.Errorf("time label %q: %w", label, ErrInvalidTimeLabel)
		}
		if _, dup := l.index[label]; dup {
			return Labels{}, fmt.Errorf("duplicate time label %q", label)
		}
		l.index[label] = len(l.list)
		l.list = append(l.list, label)
	}
	return l, nil
}

// HourlyLabels returns one label per hour from fromHour to toHour inclusive.
func HourlyLabels(fromHour, toHour int) Labels {
	var list []string
	for h := fromHour; h <= toHour; h++ {
		list = append(list, time.Date(2000, 1, 1, h, 0, 0, 0, time.UTC).Format(TimeLayout))
	}
	l, _ := NewLabels(list...)
	return l
}

// DefaultLabels covers 06:00 AM through 10:00 PM.
var DefaultLabels = HourlyLabels(6, 22)

func (l Labels) All() []string {
	out := make([]string, len(l.list))
	copy(out, l.list)
	return out
}

func (l Labels) Contains(label string) bool {
	_, ok := l.index[label]
	return ok
}

func (l Labels) Len() int { return len(l.list) }

// order reports the position of label; unknown labels sort last.
func (l Labels) order(label string) int {
	if i, ok := l.index[label]; ok {
		return i
	}
	return len(l.list)
}

// ComputeWeek returns the seven calendar days starting on the Sunday on or
// before date, in date's location.
func ComputeWeek(date time.Time) [7]time.Time {
	y, m, d := date.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, date.Location())
	sunday := day.AddDate(0, 0, -int(day.Weekday()))

	var week [7]time.Time
	for i := range week {
		week[i] = sunday.AddDate(0, 0, i)
	}
	return week
}
