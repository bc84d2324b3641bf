package attendance

import "math"

// ComputeStats tallies a set of records. Records with an unset status are
// excluded from all counts (relevant for draft sessions). The rate counts
// present and late as attended.
func ComputeStats(records []Record) Stats {
	stats := Stats{Total: len(records)}
	for _, rec := range records {
		switch rec.Status {
		case StatusPresent:
			stats.Present++
		case StatusAbsent:
			stats.Absent++
		case StatusLate:
			stats.Late++
		case StatusExcused:
			stats.Excused++
		}
	}
	if stats.Total > 0 {
		stats.Rate = int(math.Round(float64(stats.Present+stats.Late) / float64(stats.Total) * 100))
	}
	return stats
}
