package domain

import "time"

// Mode selects the SLO budget policy applied by the orchestrator (§4.I).
type Mode string

const (
	ModeQuick Mode = "quick"
	ModeDeep  Mode = "deep"
)

// QueryMode selects the Gmail search query shape (§4.G).
type QueryMode string

const (
	QueryTransactions QueryMode = "transactions"
	QueryBroad        QueryMode = "broad"
)

// Options is the normative per-session budget configuration (§6).
type Options struct {
	Mode              Mode
	DaysBack          int
	PageSize          int
	ChunkMs           int
	FullFetchCap      int
	Concurrency       int
	MaxPages          int
	MaxCandidates     int
	MaxListIDs        int
	ClusterCap        int
	QueryMode         QueryMode
	IncludePromotions bool
	Cursor            *string
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// DefaultOptions returns the default session options before SLO clamping.
func DefaultOptions() Options {
	return Options{
		Mode:         ModeQuick,
		DaysBack:     90,
		PageSize:     100,
		ChunkMs:      9000,
		FullFetchCap: 25,
		Concurrency:  6,
		MaxPages:     8,
		MaxCandidates: 80,
		MaxListIDs:   1200,
		ClusterCap:   100,
		QueryMode:    QueryTransactions,
	}
}

// Normalize clamps every field into the §6 normative ranges, independent of SLO mode.
func (o Options) Normalize() Options {
	o.DaysBack = clampInt(o.DaysBack, 1, 3650)
	o.PageSize = clampInt(o.PageSize, 50, 500)
	o.ChunkMs = clampInt(o.ChunkMs, 8000, 45000)
	o.FullFetchCap = clampInt(o.FullFetchCap, 0, 120)
	o.Concurrency = clampInt(o.Concurrency, 2, 10)
	o.MaxPages = clampInt(o.MaxPages, 1, 400)
	o.MaxCandidates = clampInt(o.MaxCandidates, 10, 400)
	o.MaxListIDs = clampInt(o.MaxListIDs, 300, 25000)
	o.ClusterCap = clampInt(o.ClusterCap, 10, 200)
	if o.QueryMode != QueryBroad {
		o.QueryMode = QueryTransactions
	}
	if o.Mode != ModeDeep {
		o.Mode = ModeQuick
	}
	return o
}

// EnforceBudgets applies the per-mode SLO policy on top of Normalize (§4.I step 4).
func (o Options) EnforceBudgets() Options {
	o = o.Normalize()
	switch o.Mode {
	case ModeDeep:
		o.DaysBack = clampInt(o.DaysBack, 1, 3650)
		o.MaxPages = clampInt(o.MaxPages, 1, 400)
		o.MaxListIDs = clampInt(o.MaxListIDs, 300, 25000)
	default: // quick
		o.DaysBack = clampInt(o.DaysBack, 1, 120)
		o.MaxPages = clampInt(o.MaxPages, 1, 8)
		o.MaxListIDs = clampInt(o.MaxListIDs, 300, 1200)
		o.FullFetchCap = clampInt(o.FullFetchCap, 0, 20)
		o.MaxCandidates = clampInt(o.MaxCandidates, 10, 80)
		o.ChunkMs = clampInt(o.ChunkMs, 8000, 12000)
		o.QueryMode = QueryTransactions
		o.IncludePromotions = false
	}
	return o
}

// ChunkDeadline returns the hard wall-clock deadline for one chunk invocation,
// 900ms short of the true chunkMs ceiling so results can still be flushed (§4.H).
func (o Options) ChunkDeadline(start time.Time) time.Time {
	return start.Add(time.Duration(o.ChunkMs) * time.Millisecond).Add(-900 * time.Millisecond)
}
