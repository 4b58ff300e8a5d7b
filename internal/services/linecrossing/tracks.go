package linecrossing

import (
	"sort"
	"time"

	"github.com/golang/geo/r2"
)

// track is one axle followed across overhead frames.
type track struct {
	id        int
	positions []r2.Point
	crossed   bool
	vehicleID string
	lastSeen  time.Time
}

func (t *track) last() r2.Point {
	return t.positions[len(t.positions)-1]
}

// observe appends a centroid, dropping the oldest beyond limit.
func (t *track) observe(p r2.Point, now time.Time, limit int) {
	t.positions = append(t.positions, p)
	if len(t.positions) > limit {
		t.positions = t.positions[len(t.positions)-limit:]
	}
	t.lastSeen = now
}

// trackTable holds live tracks keyed by id. Ids grow monotonically until a
// hard reset.
type trackTable struct {
	tracks map[int]*track
	nextID int
}

func newTrackTable() trackTable {
	return trackTable{tracks: make(map[int]*track)}
}

func (tt *trackTable) add(vehicleID string, p r2.Point, now time.Time) *track {
	tt.nextID++
	t := &track{
		id:        tt.nextID,
		positions: []r2.Point{p},
		vehicleID: vehicleID,
		lastSeen:  now,
	}
	tt.tracks[t.id] = t
	return t
}

// ordered returns live tracks by ascending id so matching is deterministic.
func (tt *trackTable) ordered() []*track {
	out := make([]*track, 0, len(tt.tracks))
	for _, t := range tt.tracks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// nearest finds the closest track within maxDistance whose id is not in
// skip. Ties keep the lower id.
func (tt *trackTable) nearest(p r2.Point, maxDistance float64, skip map[int]bool) (*track, bool) {
	var best *track
	bestDist := maxDistance
	for _, t := range tt.ordered() {
		if skip[t.id] || len(t.positions) == 0 {
			continue
		}
		d := p.Sub(t.last()).Norm()
		if d < bestDist {
			best, bestDist = t, d
		}
	}
	return best, best != nil
}

func (tt *trackTable) purge(now time.Time, staleAfter time.Duration) int {
	removed := 0
	for id, t := range tt.tracks {
		if now.Sub(t.lastSeen) > staleAfter {
			delete(tt.tracks, id)
			removed++
		}
	}
	return removed
}

func (tt *trackTable) dropVehicle(vehicleID string) {
	for id, t := range tt.tracks {
		if t.vehicleID == vehicleID {
			delete(tt.tracks, id)
		}
	}
}

func (tt *trackTable) clear(resetIDs bool) {
	tt.tracks = make(map[int]*track)
	if resetIDs {
		tt.nextID = 0
	}
}
