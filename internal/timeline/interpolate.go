// Package timeline turns sparse status polls into a gap-free status timeline.
package timeline

import (
	"sort"
	"time"

	"github.com/hamed0406/storemonitor/internal/domain"
)

// Interpolate covers [start, end) with contiguous status intervals.
//
// A poll's status holds from its timestamp until the next poll. The first
// poll's status is carried back to start and the last poll's status forward
// to end. Polls outside the window only shape the status at its edges. With
// no polls the whole window is inactive.
func Interpolate(obs []domain.StatusObservation, start, end time.Time) []domain.StatusInterval {
	if !start.Before(end) {
		return nil
	}
	if len(obs) == 0 {
		return []domain.StatusInterval{{Start: start, End: end, Status: domain.StatusInactive}}
	}

	sorted := make([]domain.StatusObservation, len(obs))
	copy(sorted, obs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		}
		return sorted[i].Seq < sorted[j].Seq
	})

	out := make([]domain.StatusInterval, 0, len(sorted)+1)
	emit := func(s, e time.Time, st domain.Status) {
		if s.Before(start) {
			s = start
		}
		if e.After(end) {
			e = end
		}
		if s.Before(e) {
			out = append(out, domain.StatusInterval{Start: s, End: e, Status: st})
		}
	}

	first := sorted[0]
	if first.Timestamp.After(start) {
		emit(start, first.Timestamp, first.Status)
	}
	for i := 0; i < len(sorted)-1; i++ {
		emit(sorted[i].Timestamp, sorted[i+1].Timestamp, sorted[i].Status)
	}
	last := sorted[len(sorted)-1]
	if last.Timestamp.Before(end) {
		emit(last.Timestamp, end, last.Status)
	}
	return out
}
