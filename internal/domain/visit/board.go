package visit

import "sort"

// Board is the display grouping of one queue scope.
type Board struct {
	NowServing []*Record `json:"now_serving"`
	Waiting    []*Record `json:"waiting"`
	Scheduled  []*Record `json:"scheduled"`
}

// BuildBoard drops terminal records, orders the rest by scheduled time and
// then record number, and groups them by status. The input is not modified.
func BuildBoard(records []*Record) Board {
	live := make([]*Record, 0, len(records))
	for _, r := range records {
		if r != nil && !r.Status.Terminal() {
			live = append(live, r)
		}
	}
	sort.SliceStable(live, func(i, j int) bool {
		if live[i].TimeScheduled != live[j].TimeScheduled {
			return live[i].TimeScheduled < live[j].TimeScheduled
		}
		return live[i].RecordNo < live[j].RecordNo
	})

	b := Board{NowServing: []*Record{}, Waiting: []*Record{}, Scheduled: []*Record{}}
	for _, r := range live {
		switch r.Status {
		case StatusCurrent:
			b.NowServing = append(b.NowServing, r)
		case StatusQueued:
			b.Waiting = append(b.Waiting, r)
		case StatusScheduled:
			b.Scheduled = append(b.Scheduled, r)
		}
	}
	return b
}
