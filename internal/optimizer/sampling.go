package optimizer

import (
	"context"
	"math/rand"

	"golang.org/x/sync/errgroup"
)

// chunkSize fixes how samples map to RNG streams.
// Chunk k always draws from the same stream, so a run with more samples
// reproduces every sample of a smaller run as its prefix.
const chunkSize = 1024

// sample fills Simulations samples, chunk by chunk, across Workers goroutines.
// Output order and values do not depend on the number of workers.
func (o *Optimizer) sample(ctx context.Context, m *Moments, seed int64) ([]Sample, error) {
	total := o.config.Simulations
	samples := make([]Sample, total)
	chunks := (total + chunkSize - 1) / chunkSize

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.Workers)

	for k := 0; k < chunks; k++ {
		start := k * chunkSize
		end := min(start+chunkSize, total)
		k := k
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(chunkSeed(seed, k)))
			for i := start; i < end; i++ {
				samples[i] = o.draw(rng, m)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return samples, nil
}

// draw normalises a uniform vector onto the simplex and evaluates it
func (o *Optimizer) draw(rng *rand.Rand, m *Moments) Sample {
	n := len(m.Mean)
	w := make([]float64, n)
	sum := 0.0
	for i := range w {
		w[i] = rng.Float64()
		sum += w[i]
	}
	if sum == 0 {
		// all-zero draw has no direction
		for i := range w {
			w[i] = 1 / float64(n)
		}
	} else {
		for i := range w {
			w[i] /= sum
		}
	}

	s := Sample{Weights: w}
	if o.config.MaxWeight > 0 {
		for _, v := range w {
			if v > o.config.MaxWeight {
				s.Rejected = true
				return s
			}
		}
	}
	s.Return, s.Volatility, s.Sharpe = PortfolioStats(w, m.Mean, m.Covariance, o.config.RiskFreeRate)
	return s
}

// chunkSeed derives an independent stream per chunk (splitmix64 finaliser)
func chunkSeed(seed int64, chunk int) int64 {
	z := uint64(seed) + uint64(chunk+1)*0x9E3779B97F4A7C15
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return int64(z ^ (z >> 31))
}
