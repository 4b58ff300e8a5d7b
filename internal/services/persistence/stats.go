package persistence

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/rchmtmaulana/skripsi-avc/internal/models"
)

// ComputeStats summarises processing durations. Timeouts are counted but
// kept in the duration figures.
func ComputeStats(txs []models.Transaction) models.TransactionStats {
	out := models.TransactionStats{
		Count:            len(txs),
		ByClassification: make(map[models.Classification]int),
	}
	if len(txs) == 0 {
		return out
	}

	durations := make([]float64, len(txs))
	for i, tx := range txs {
		durations[i] = tx.ProcessingDurationSeconds
		if tx.Status == models.TransactionTimeout {
			out.TimeoutCount++
		}
		if tx.Classification.IsSet() {
			out.ByClassification[tx.Classification]++
		}
	}
	sort.Float64s(durations)

	mean, std := stat.MeanStdDev(durations, nil)
	if math.IsNaN(std) {
		std = 0
	}
	out.MeanSeconds = round2(mean)
	out.StdDevSeconds = round2(std)
	out.MedianSeconds = round2(stat.Quantile(0.5, stat.Empirical, durations, nil))
	out.P95Seconds = round2(stat.Quantile(0.95, stat.Empirical, durations, nil))
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Stats loads transactions matching q and summarises them.
func Stats(ctx context.Context, store Store, q Query) (models.TransactionStats, error) {
	if q.Limit == 0 {
		q.Limit = maxLimit
	}
	txs, err := store.List(ctx, q)
	if err != nil {
		return models.TransactionStats{}, err
	}
	return ComputeStats(txs), nil
}
