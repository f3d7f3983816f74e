// internal/service/report.go
package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"risk-engine/internal/models"
)

const (
	DefaultReportWindow = "7d"
	topFactorCount      = 5
)

// ReportService aggregates historical analyses into fraud reports.
type ReportService struct {
	analyses AnalysisStore
	logger   *zap.Logger
	now      func() time.Time
}

func NewReportService(analyses AnalysisStore, logger *zap.Logger) *ReportService {
	return &ReportService{
		analyses: analyses,
		logger:   logger,
		now:      time.Now,
	}
}

// ParseWindow accepts day windows such as "7d" or "30d" and Go durations
// such as "12h". An empty window means DefaultReportWindow.
func ParseWindow(window string) (time.Duration, error) {
	if window == "" {
		window = DefaultReportWindow
	}
	if strings.HasSuffix(window, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(window, "d"))
		if err != nil || days <= 0 {
			return 0, fmt.Errorf("%w: %q", models.ErrInvalidWindow, window)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(window)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: %q", models.ErrInvalidWindow, window)
	}
	return d, nil
}

// Generate builds the report for [now-window, now].
func (s *ReportService) Generate(ctx context.Context, window string) (*models.FraudReport, error) {
	d, err := ParseWindow(window)
	if err != nil {
		return nil, err
	}
	if window == "" {
		window = DefaultReportWindow
	}

	to := s.now().UTC()
	from := to.Add(-d)

	analyses, err := s.analyses.ListAnalyses(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}

	report := Aggregate(analyses)
	report.Window = window
	report.From = from
	report.To = to
	report.GeneratedAt = to

	s.logger.Info("fraud report generated",
		zap.String("window", window),
		zap.Int("analyses", report.TotalAnalyses),
		zap.Int("blocked", report.BlockedCount))
	return report, nil
}

// Aggregate computes counts, averages, and the top contributing factors.
func Aggregate(analyses []*models.FraudAnalysisResult) *models.FraudReport {
	report := &models.FraudReport{
		CountsByLevel: map[models.RiskLevel]int{
			models.RiskLevelLow:      0,
			models.RiskLevelMedium:   0,
			models.RiskLevelHigh:     0,
			models.RiskLevelCritical: 0,
		},
		TopFactors: []models.FactorStat{},
	}

	type factorTotals struct {
		count int
		sum   int
	}
	totals := make(map[models.FactorName]*factorTotals)
	scoreSum := 0

	for _, a := range analyses {
		report.TotalAnalyses++
		report.CountsByLevel[a.RiskLevel]++
		scoreSum += a.Score
		if a.ShouldBlock {
			report.BlockedCount++
		}
		if a.RequiresManualReview {
			report.ManualReviewCount++
		}
		if a.FailSafe {
			report.FailSafeCount++
		}
		for _, f := range a.Factors {
			if !f.DataAvailable || f.Score <= 0 {
				continue
			}
			t, ok := totals[f.Factor]
			if !ok {
				t = &factorTotals{}
				totals[f.Factor] = t
			}
			t.count++
			t.sum += f.Score
		}
	}

	if report.TotalAnalyses > 0 {
		report.AverageScore = round2(float64(scoreSum) / float64(report.TotalAnalyses))
	}

	for name, t := range totals {
		report.TopFactors = append(report.TopFactors, models.FactorStat{
			Factor:       name,
			Occurrences:  t.count,
			AverageScore: round2(float64(t.sum) / float64(t.count)),
		})
	}
	sort.Slice(report.TopFactors, func(i, j int) bool {
		a, b := report.TopFactors[i], report.TopFactors[j]
		if a.Occurrences != b.Occurrences {
			return a.Occurrences > b.Occurrences
		}
		return a.Factor < b.Factor
	})
	if len(report.TopFactors) > topFactorCount {
		report.TopFactors = report.TopFactors[:topFactorCount]
	}

	return report
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
