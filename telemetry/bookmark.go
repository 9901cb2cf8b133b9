package telemetry

import (
	"fmt"
	"log/slog"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkHalfConverged      BookmarkType = "half_converged"
	BookmarkDisplacementSpike  BookmarkType = "displacement_spike"
	BookmarkDensityErrorJump   BookmarkType = "density_error_jump"
	BookmarkNormalizationFloor BookmarkType = "normalization_floor"
	BookmarkStalled            BookmarkType = "stalled"
)

// Bookmark marks a notable iteration of a relaxation run.
type Bookmark struct {
	Type        BookmarkType
	Iteration   int
	Description string
}

// BookmarkDetector watches iteration stats for moments worth pointing out
// in the log: sudden jumps, the normalization bottoming out, or a run that
// stops making progress.
type BookmarkDetector struct {
	log *slog.Logger

	// Rolling history (circular buffer)
	history     []IterationStats
	historySize int
	historyIdx  int
	historyFull bool

	deltaMin float64

	halfConverged bool
	atFloor       bool
	stalled       bool
}

// NewBookmarkDetector creates a detector with the given history size.
// deltaMin is the normalization floor of the run. A nil logger uses
// slog.Default.
func NewBookmarkDetector(historySize int, deltaMin float64, logger *slog.Logger) *BookmarkDetector {
	if historySize < 5 {
		historySize = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BookmarkDetector{
		log:         logger,
		history:     make([]IterationStats, historySize),
		historySize: historySize,
		deltaMin:    deltaMin,
	}
}

// RecordIteration logs every bookmark triggered by stats.
func (bd *BookmarkDetector) RecordIteration(stats IterationStats) error {
	for _, b := range bd.Check(stats) {
		bd.log.Info("bookmark",
			"type", string(b.Type),
			"iteration", b.Iteration,
			"description", b.Description,
		)
	}
	return nil
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats IterationStats) []Bookmark {
	var bookmarks []Bookmark

	if b := bd.checkHalfConverged(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}
	if b := bd.checkNormalizationFloor(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}
	if b := bd.checkDisplacementSpike(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}
	if b := bd.checkDensityErrorJump(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}
	if b := bd.checkStalled(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}

	bd.addToHistory(stats)
	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats IterationStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

func (bd *BookmarkDetector) getHistory() []IterationStats {
	if bd.historyFull {
		return bd.history
	}
	return bd.history[:bd.historyIdx]
}

func (bd *BookmarkDetector) checkHalfConverged(stats IterationStats) *Bookmark {
	if bd.halfConverged || stats.FractionConverged < 0.5 {
		return nil
	}
	bd.halfConverged = true
	return &Bookmark{
		Type:        BookmarkHalfConverged,
		Iteration:   stats.Iteration,
		Description: fmt.Sprintf("%.1f%% of particles below the convergence threshold", 100*stats.FractionConverged),
	}
}

func (bd *BookmarkDetector) checkNormalizationFloor(stats IterationStats) *Bookmark {
	if bd.atFloor || bd.deltaMin <= 0 || stats.Normalization > bd.deltaMin {
		return nil
	}
	bd.atFloor = true
	return &Bookmark{
		Type:        BookmarkNormalizationFloor,
		Iteration:   stats.Iteration,
		Description: fmt.Sprintf("Normalization reached its floor %.3g", bd.deltaMin),
	}
}

func (bd *BookmarkDetector) checkDisplacementSpike(stats IterationStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 {
		return nil
	}

	var total float64
	for _, h := range history {
		total += h.MaxDisplacement
	}
	avg := total / float64(len(history))
	if avg == 0 {
		return nil
	}

	if stats.MaxDisplacement > avg*2.0 {
		return &Bookmark{
			Type:        BookmarkDisplacementSpike,
			Iteration:   stats.Iteration,
			Description: fmt.Sprintf("Max displacement %.3g is %.1fx average (%.3g)", stats.MaxDisplacement, stats.MaxDisplacement/avg, avg),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkDensityErrorJump(stats IterationStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 {
		return nil
	}

	var total float64
	for _, h := range history {
		total += h.DensityErrorMean
	}
	avg := total / float64(len(history))
	if avg == 0 {
		return nil
	}

	if stats.DensityErrorMean > avg*1.5 {
		return &Bookmark{
			Type:        BookmarkDensityErrorJump,
			Iteration:   stats.Iteration,
			Description: fmt.Sprintf("Mean density error %.3g is %.1fx average (%.3g), %d redistributed", stats.DensityErrorMean, stats.DensityErrorMean/avg, avg, stats.Redistributed),
		}
	}
	return nil
}

// checkStalled fires once when the max displacement has changed by less
// than 1% across a full history window, and rearms when progress resumes.
func (bd *BookmarkDetector) checkStalled(stats IterationStats) *Bookmark {
	if !bd.historyFull {
		return nil
	}

	lo, hi := stats.MaxDisplacement, stats.MaxDisplacement
	for _, h := range bd.history {
		lo = min(lo, h.MaxDisplacement)
		hi = max(hi, h.MaxDisplacement)
	}
	flat := hi == 0 || (hi-lo)/hi < 0.01

	if !flat {
		bd.stalled = false
		return nil
	}
	if bd.stalled || stats.Status == "converged" {
		return nil
	}
	bd.stalled = true
	return &Bookmark{
		Type:        BookmarkStalled,
		Iteration:   stats.Iteration,
		Description: fmt.Sprintf("Max displacement flat at %.3g over %d iterations", stats.MaxDisplacement, bd.historySize+1),
	}
}
