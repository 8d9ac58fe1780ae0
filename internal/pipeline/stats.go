package pipeline

import (
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/labelscan/internal/nutrition"
)

// Stats aggregates counters across scans. Safe for concurrent use.
type Stats struct {
	Scans       atomic.Int64
	Failures    atomic.Int64
	CacheHits   atomic.Int64
	FieldsFound atomic.Int64
	ScanTimeNs  atomic.Int64
}

func (s *Stats) record(res *nutrition.Result, d time.Duration) {
	s.Scans.Add(1)
	s.ScanTimeNs.Add(d.Nanoseconds())
	if res == nil || !res.Success {
		s.Failures.Add(1)
		return
	}
	s.FieldsFound.Add(int64(res.FieldCount()))
}

func (s *Stats) recordCacheHit() { s.CacheHits.Add(1) }

// Snapshot returns cumulative counters, with times in milliseconds.
func (s *Stats) Snapshot() map[string]any {
	scans := s.Scans.Load()
	ns := s.ScanTimeNs.Load()
	out := map[string]any{
		"scans":         scans,
		"failures":      s.Failures.Load(),
		"cache_hits":    s.CacheHits.Load(),
		"fields_found":  s.FieldsFound.Load(),
		"scan_ms_total": ns / 1_000_000,
	}
	if scans > 0 {
		out["scan_ms_per_scan"] = float64(ns) / 1_000_000.0 / float64(scans)
	}
	return out
}
