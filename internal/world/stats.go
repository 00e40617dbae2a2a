package world

import (
	"time"

	"github.com/wegman-software/tileworld-go/internal/features"
	"github.com/wegman-software/tileworld-go/internal/geo"
)

// Stage names in the order a run touches them
const (
	StageTiles     = "tiles"
	StageTerrain   = "terrain"
	StageBuildings = "buildings"
	StageRoads     = "roads"
	StageLanduse   = "landuse"
	StageWater     = "water"
)

// StageNames lists every stage
func StageNames() []string {
	return []string{StageTiles, StageTerrain, StageBuildings, StageRoads, StageLanduse, StageWater}
}

// StageForKind returns the stage that counts features of a kind
func StageForKind(k features.Kind) string {
	switch k {
	case features.KindBuilding:
		return StageBuildings
	case features.KindRoad:
		return StageRoads
	case features.KindLanduse:
		return StageLanduse
	case features.KindWater:
		return StageWater
	}
	return ""
}

// Stage counts one stage of a run. Counts only grow during a run.
// Processed = Success + Failed + Skipped.
type Stage struct {
	Name      string `json:"name"`
	Total     int    `json:"total"`
	Processed int    `json:"processed"`
	Success   int    `json:"success"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"` // dropped by the style filter or classifier
}

// SuccessRate returns Success/Total as a percentage
func (s Stage) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Success) / float64(s.Total) * 100
}

// Stats is the result of one generation run
type Stats struct {
	Stages   []*Stage `json:"stages"`
	Current  string   `json:"current"`
	Unmapped int      `json:"unmapped"` // features of layers with no kind
	Entities int      `json:"entities"`
	// FailedTiles lists tiles that failed this run; they are retried next run
	FailedTiles []geo.TileAddress `json:"failed_tiles,omitempty"`
	Started     time.Time         `json:"started"`
	Duration    time.Duration     `json:"duration"`
}

func newStats() *Stats {
	s := &Stats{Started: time.Now()}
	for _, name := range StageNames() {
		s.Stages = append(s.Stages, &Stage{Name: name})
	}
	return s
}

// Stage returns the named stage, or nil
func (s *Stats) Stage(name string) *Stage {
	for _, st := range s.Stages {
		if st.Name == name {
			return st
		}
	}
	return nil
}

// Clone returns a deep copy safe to hand to another goroutine
func (s *Stats) Clone() *Stats {
	if s == nil {
		return nil
	}
	out := *s
	out.Stages = make([]*Stage, len(s.Stages))
	for i, st := range s.Stages {
		c := *st
		out.Stages[i] = &c
	}
	out.FailedTiles = append([]geo.TileAddress(nil), s.FailedTiles...)
	return &out
}

// FeatureTotals sums the feature stages
func (s *Stats) FeatureTotals() Stage {
	sum := Stage{Name: "features"}
	for _, st := range s.Stages {
		if st.Name == StageTiles {
			continue
		}
		sum.Total += st.Total
		sum.Processed += st.Processed
		sum.Success += st.Success
		sum.Failed += st.Failed
		sum.Skipped += st.Skipped
	}
	return sum
}
