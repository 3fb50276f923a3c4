package timesheet

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	ErrNoDoctorSelected = errors.New("no doctor selected")
	ErrOutsideWeek      = errors.New("date is outside the grid week")
	ErrInvalidTimeLabel = errors.New("invalid time label")
)

// Grid is one doctor's editable week. Committed slots come from storage;
// selected slots exist only for the current editing session.
type Grid struct {
	employeeID int64
	week       [7]time.Time
	labels     Labels

	committed map[slotKey]struct{}
	selected  map[slotKey]struct{}
	removed   map[slotKey]struct{}
}

// NewGrid builds the grid for the week containing date. Committed rows for
// other employees or other weeks are ignored.
func NewGrid(employeeID int64, date time.Time, labels Labels, committed []Slot) (*Grid, error) {
	if employeeID == 0 {
		return nil, ErrNoDoctorSelected
	}
	g := &Grid{
		employeeID: employeeID,
		week:       ComputeWeek(date),
		labels:     labels,
		committed:  make(map[slotKey]struct{}),
		selected:   make(map[slotKey]struct{}),
		removed:    make(map[slotKey]struct{}),
	}
	for _, s := range committed {
		if s.EmployeeID != employeeID || !g.inWeek(s.Date) {
			continue
		}
		g.committed[s.key()] = struct{}{}
	}
	return g, nil
}

func (g *Grid) EmployeeID() int64  { return g.employeeID }
func (g *Grid) Week() [7]time.Time { return g.week }
func (g *Grid) Labels() Labels     { return g.labels }
func (g *Grid) Start() time.Time   { return g.week[0] }
func (g *Grid) End() time.Time     { return g.week[6] }

func (g *Grid) inWeek(date time.Time) bool {
	d := date.Format(DateLayout)
	return d >= g.week[0].Format(DateLayout) && d <= g.week[6].Format(DateLayout)
}

func (g *Grid) keyFor(date time.Time, label string) (slotKey, error) {
	if !g.inWeek(date) {
		return slotKey{}, fmt.Errorf("%s: %w", date.Format(DateLayout), ErrOutsideWeek)
	}
	if !g.labels.Contains(label) {
		return slotKey{}, fmt.Errorf("%q: %w", label, ErrInvalidTimeLabel)
	}
	return slotKey{date: date.Format(DateLayout), time: label}, nil
}

// Classify reports the display state of a cell. Committed wins over Selected.
func (g *Grid) Classify(date time.Time, label string) State {
	k := slotKey{date: date.Format(DateLayout), time: label}
	if _, ok := g.committed[k]; ok {
		return StateCommitted
	}
	if _, ok := g.selected[k]; ok {
		return StateSelected
	}
	return StateEmpty
}

// Select adds a cell to the session selection. Selecting a committed slot
// also withdraws a pending removal of it.
func (g *Grid) Select(date time.Time, label string) error {
	k, err := g.keyFor(date, label)
	if err != nil {
		return err
	}
	g.selected[k] = struct{}{}
	delete(g.removed, k)
	return nil
}

func (g *Grid) Deselect(date time.Time, label string) error {
	k, err := g.keyFor(date, label)
	if err != nil {
		return err
	}
	delete(g.selected, k)
	return nil
}

// Toggle flips a cell. On a committed slot it marks or unmarks the slot for
// removal; the cell keeps displaying as Committed until the removal is saved.
func (g *Grid) Toggle(date time.Time, label string) error {
	k, err := g.keyFor(date, label)
	if err != nil {
		return err
	}
	if _, ok := g.committed[k]; ok {
		if _, marked := g.removed[k]; marked {
			delete(g.removed, k)
		} else {
			g.removed[k] = struct{}{}
		}
		return nil
	}
	if _, ok := g.selected[k]; ok {
		delete(g.selected, k)
	} else {
		g.selected[k] = struct{}{}
	}
	return nil
}

// MarkedForRemoval reports whether a committed slot was toggled off.
func (g *Grid) MarkedForRemoval(date time.Time, label string) bool {
	_, ok := g.removed[slotKey{date: date.Format(DateLayout), time: label}]
	return ok
}

// PendingWrites lists one slot per selected cell that is not already
// committed, ordered by date then label order.
func (g *Grid) PendingWrites() []Slot {
	var out []Slot
	for k := range g.selected {
		if _, ok := g.committed[k]; ok {
			continue
		}
		out = append(out, g.slotFor(k))
	}
	g.sortSlots(out)
	return out
}

// PendingRemovals lists committed slots toggled off in this session.
func (g *Grid) PendingRemovals() []Slot {
	var out []Slot
	for k := range g.removed {
		out = append(out, g.slotFor(k))
	}
	g.sortSlots(out)
	return out
}

// MarkCommitted promotes written slots out of the session selection.
func (g *Grid) MarkCommitted(writes []Slot) {
	for _, s := range writes {
		k := s.key()
		g.committed[k] = struct{}{}
		delete(g.selected, k)
	}
}

// MarkRemoved drops deleted slots from the committed set.
func (g *Grid) MarkRemoved(removals []Slot) {
	for _, s := range removals {
		k := s.key()
		delete(g.committed, k)
		delete(g.removed, k)
		delete(g.selected, k)
	}
}

func (g *Grid) slotFor(k slotKey) Slot {
	d, _ := time.ParseInLocation(DateLayout, k.date, g.week[0].Location())
	return Slot{EmployeeID: g.employeeID, Date: d, Time: k.time}
}

func (g *Grid) sortSlots(slots []Slot) {
	sort.Slice(slots, func(i, j int) bool {
		di, dj := slots[i].Date.Format(DateLayout), slots[j].Date.Format(DateLayout)
		if di != dj {
			return di < dj
		}
		return g.labels.order(slots[i].Time) < g.labels.order(slots[j].Time)
	})
}

// CommittedOn lists committed labels for one day in label order.
func (g *Grid) CommittedOn(date time.Time) []string {
	var out []string
	for _, label := range g.labels.list {
		if g.Classify(date, label) == StateCommitted {
			out = append(out, label)
		}
	}
	return out
}

// GridView is the JSON rendering of a Grid.
type GridView struct {
	EmployeeID int64     `json:"employee_id"`
	Week       []string  `json:"week"`
	Rows       []RowView `json:"rows"`
}

type RowView struct {
	Time  string  `json:"time"`
	Cells []State `json:"cells"`
}

func (g *Grid) View() GridView {
	v := GridView{EmployeeID: g.employeeID, Week: make([]string, 0, 7)}
	for _, d := range g.week {
		v.Week = append(v.Week, d.Format(DateLayout))
	}
	for _, label := range g.labels.list {
		row := RowView{Time: label, Cells: make([]State, 0, 7)}
		for _, d := range g.week {
			row.Cells = append(row.Cells, g.Classify(d, label))
		}
		v.Rows = append(v.Rows, row)
	}
	return v
}
