package selection

import (
	"fmt"
	"math"
	"sort"

	"github.com/wonny/diversifier/internal/contracts"
	"github.com/wonny/diversifier/internal/correlation"
	"github.com/wonny/diversifier/pkg/logger"
)

// Selector picks a diversified fixed-size portfolio from ranked candidates
// ⭐ SSOT: 상관관계 기반 종목 선택 로직은 여기서만
type Selector struct {
	config Config
	logger *logger.Logger
}

// NewSelector creates a new selector
func NewSelector(config Config, log *logger.Logger) (*Selector, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("selection config: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Selector{config: config, logger: log.WithComponent("selection")}, nil
}

// Config returns the selector configuration
func (s *Selector) Config() Config {
	return s.config
}

type candidate struct {
	metric contracts.AssetMetric
	rank   int // 1-based position in the ranked pool
}

// Select runs sector seeding followed by the correlation-aware fill.
// candidates must be ranked best-first; that order breaks every tie.
// A portfolio smaller than TargetSize comes back with Underfilled set (see Portfolio.Err).
func (s *Selector) Select(candidates []contracts.AssetMetric, corr *correlation.Matrix) (*contracts.Portfolio, error) {
	if corr == nil {
		return nil, fmt.Errorf("selection: correlation matrix is nil")
	}

	p := &contracts.Portfolio{
		TargetSize: s.config.TargetSize,
		Excluded:   make(map[string]string),
	}

	pool := s.buildPool(candidates, corr, p.Excluded)

	selected := make([]candidate, 0, s.config.TargetSize)
	chosen := make(map[string]bool, s.config.TargetSize)
	sectorCount := make(map[string]int)

	add := func(c candidate, stage contracts.SelectionStage, score float64) {
		selected = append(selected, c)
		chosen[c.metric.Ticker] = true
		sectorCount[c.metric.Sector]++
		p.Members = append(p.Members, contracts.PortfolioMember{
			Asset: c.metric,
			Rank:  c.rank,
			Stage: stage,
			Score: score,
		})
	}

	// 1. seeding: best candidate of each of the S most populated sectors
	for _, sector := range s.seedSectors(pool) {
		if len(selected) >= s.config.TargetSize {
			break
		}
		best := -1
		for i, c := range pool {
			if c.metric.Sector != sector || chosen[c.metric.Ticker] {
				continue
			}
			if best == -1 || c.metric.Quality() > pool[best].metric.Quality() {
				best = i
			}
		}
		if best >= 0 {
			add(pool[best], contracts.StageSeed, pool[best].metric.Quality())
		}
	}

	// 2. fill: maximise blended score under the sector cap
	for len(selected) < s.config.TargetSize {
		best := -1
		bestScore, bestCorr := math.Inf(-1), math.Inf(1)
		for i, c := range pool {
			if chosen[c.metric.Ticker] {
				continue
			}
			if sectorCount[c.metric.Sector] >= s.config.MaxPerSector {
				continue
			}
			avgCorr := averageAbsCorrelation(c.metric.Ticker, selected, corr)
			score := s.score(c.metric, avgCorr)
			// equal scores (clamped quality collapses them to 0) go to the
			// less correlated candidate, then to rank
			if best == -1 || score > bestScore || (score == bestScore && avgCorr < bestCorr) {
				best, bestScore, bestCorr = i, score, avgCorr
			}
		}
		if best == -1 {
			break
		}
		add(pool[best], contracts.StageFill, bestScore)
	}

	// 3. internal diversification against the other members
	for i := range p.Members {
		p.Members[i].AvgCorrelation = memberCorrelation(i, selected, corr)
	}

	p.Bench = s.bench(pool, chosen)
	p.DistinctSectors = len(sectorCount)
	p.MinSectorsMet = p.DistinctSectors >= s.achievableSectors(pool)
	p.Underfilled = len(p.Members) < s.config.TargetSize

	if p.Underfilled {
		msg := fmt.Sprintf("under-filled: %d of %d selected (pool %d, max %d per sector)",
			len(p.Members), s.config.TargetSize, len(pool), s.config.MaxPerSector)
		p.Warnings = append(p.Warnings, msg)
		s.logger.WithFields(map[string]interface{}{
			"selected": len(p.Members),
			"target":   s.config.TargetSize,
			"pool":     len(pool),
		}).Warn("Portfolio under-filled")
	}
	if !p.MinSectorsMet {
		p.Warnings = append(p.Warnings, fmt.Sprintf("only %d distinct sectors represented", p.DistinctSectors))
	}
	if len(p.Excluded) > 0 {
		p.Warnings = append(p.Warnings, fmt.Sprintf("%d candidates excluded before selection", len(p.Excluded)))
	}

	s.logger.WithFields(map[string]interface{}{
		"selected":        len(p.Members),
		"target":          s.config.TargetSize,
		"sectors":         p.DistinctSectors,
		"mean_avg_corr":   p.MeanCorrelation(),
		"excluded_inputs": len(p.Excluded),
	}).Info("Selection completed")

	return p, nil
}

// buildPool drops duplicates, blacklisted tickers, undefined quality and
// tickers the correlation matrix does not cover
func (s *Selector) buildPool(candidates []contracts.AssetMetric, corr *correlation.Matrix, excluded map[string]string) []candidate {
	pool := make([]candidate, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for i, m := range candidates {
		switch {
		case seen[m.Ticker]:
			continue
		case s.config.IsBlackListed(m.Ticker):
			excluded[m.Ticker] = "blacklisted"
		case math.IsNaN(m.Quality()) || math.IsInf(m.Quality(), 0):
			excluded[m.Ticker] = "undefined quality score"
		default:
			if _, ok := corr.Index(m.Ticker); !ok {
				excluded[m.Ticker] = "no correlation data"
			} else {
				pool = append(pool, candidate{metric: m, rank: i + 1})
			}
		}
		seen[m.Ticker] = true
	}
	return pool
}

// seedSectors ranks sectors by candidate count, ties by first appearance,
// and returns the top MinSectors
func (s *Selector) seedSectors(pool []candidate) []string {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	var sectors []string
	for i, c := range pool {
		if _, ok := counts[c.metric.Sector]; !ok {
			firstSeen[c.metric.Sector] = i
			sectors = append(sectors, c.metric.Sector)
		}
		counts[c.metric.Sector]++
	}
	sort.SliceStable(sectors, func(a, b int) bool {
		if counts[sectors[a]] != counts[sectors[b]] {
			return counts[sectors[a]] > counts[sectors[b]]
		}
		return firstSeen[sectors[a]] < firstSeen[sectors[b]]
	})
	if len(sectors) > s.config.MinSectors {
		sectors = sectors[:s.config.MinSectors]
	}
	return sectors
}

// achievableSectors is the sector floor the pool can actually satisfy
func (s *Selector) achievableSectors(pool []candidate) int {
	distinct := make(map[string]bool)
	for _, c := range pool {
		distinct[c.metric.Sector] = true
	}
	n := s.config.MinSectors
	if len(distinct) < n {
		n = len(distinct)
	}
	if s.config.TargetSize < n {
		n = s.config.TargetSize
	}
	return n
}

func (s *Selector) score(m contracts.AssetMetric, avgCorr float64) float64 {
	if !s.config.BlendQuality {
		return -avgCorr
	}
	q := m.Quality()
	if s.config.ClampNegativeQuality && q < 0 {
		q = 0
	}
	return q * (1 - avgCorr)
}

// bench lists the best unselected candidates by quality, rank order on ties
func (s *Selector) bench(pool []candidate, chosen map[string]bool) []contracts.AssetMetric {
	rest := make([]candidate, 0, len(pool))
	for _, c := range pool {
		if !chosen[c.metric.Ticker] {
			rest = append(rest, c)
		}
	}
	sort.SliceStable(rest, func(a, b int) bool {
		return rest[a].metric.Quality() > rest[b].metric.Quality()
	})
	if len(rest) > s.config.BenchSize {
		rest = rest[:s.config.BenchSize]
	}
	out := make([]contracts.AssetMetric, len(rest))
	for i, c := range rest {
		out[i] = c.metric
	}
	return out
}

// averageAbsCorrelation is mean |corr| against the selected set.
// Undefined pairs are skipped; no defined pair at all counts as 0.
func averageAbsCorrelation(ticker string, selected []candidate, corr *correlation.Matrix) float64 {
	sum, n := 0.0, 0
	for _, other := range selected {
		v, ok := corr.At(ticker, other.metric.Ticker)
		if !ok || math.IsNaN(v) {
			continue
		}
		sum += math.Abs(v)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func memberCorrelation(i int, selected []candidate, corr *correlation.Matrix) float64 {
	others := make([]candidate, 0, len(selected)-1)
	others = append(others, selected[:i]...)
	others = append(others, selected[i+1:]...)
	return averageAbsCorrelation(selected[i].metric.Ticker, others, corr)
}
