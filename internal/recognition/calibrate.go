package recognition

import (
	"github.com/montanaflynn/stats"
)

// DistanceSummary describes one distance distribution.
type DistanceSummary struct {
	Count  int
	Min    float64
	Max    float64
	Mean   float64
	Median float64
	P5     float64
	P95    float64
}

// CalibrationReport compares distances between embeddings of the same student
// (genuine pairs) with distances between different students (impostor pairs).
type CalibrationReport struct {
	Metric    Metric
	Genuine   DistanceSummary
	Impostor  DistanceSummary
	Suggested float64 // 0 when either distribution is empty
	Overlap   bool    // genuine p95 is not below impostor p5
}

// Calibrate computes genuine and impostor distance distributions over every pair
// of reference embeddings in the registry.
func Calibrate(reg *Registry, metric Metric) CalibrationReport {
	refs := reg.references()

	var genuine, impostor stats.Float64Data
	for i := range refs {
		for j := i + 1; j < len(refs); j++ {
			d := metric.Distance(refs[i].embedding, refs[j].embedding)
			if refs[i].studentID == refs[j].studentID {
				genuine = append(genuine, d)
			} else {
				impostor = append(impostor, d)
			}
		}
	}

	report := CalibrationReport{
		Metric:   metric,
		Genuine:  summarize(genuine),
		Impostor: summarize(impostor),
	}
	if report.Genuine.Count > 0 && report.Impostor.Count > 0 {
		report.Suggested = (report.Genuine.P95 + report.Impostor.P5) / 2
		report.Overlap = report.Genuine.P95 >= report.Impostor.P5
	}
	return report
}

func summarize(data stats.Float64Data) DistanceSummary {
	if len(data) == 0 {
		return DistanceSummary{}
	}

	// Errors only occur for empty input, which is handled above.
	minV, _ := stats.Min(data)
	maxV, _ := stats.Max(data)
	mean, _ := stats.Mean(data)
	median, _ := stats.Median(data)
	p5, _ := stats.PercentileNearestRank(data, 5)
	p95, _ := stats.PercentileNearestRank(data, 95)

	return DistanceSummary{
		Count:  len(data),
		Min:    minV,
		Max:    maxV,
		Mean:   mean,
		Median: median,
		P5:     p5,
		P95:    p95,
	}
}
