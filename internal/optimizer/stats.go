package optimizer

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/wonny/diversifier/internal/contracts"
	"github.com/wonny/diversifier/internal/returns"
)

// Moments are annualised expected returns and covariance of a return matrix
type Moments struct {
	Tickers      []string
	Mean         []float64     // mean daily return × 252
	Covariance   *mat.SymDense // daily covariance × 252
	Observations int           // complete rows used
}

// EstimateMoments annualises mean and covariance over rows where every ticker is observed
func EstimateMoments(rm *returns.Matrix) (*Moments, error) {
	if rm == nil || rm.Cols() < 2 {
		return nil, &contracts.InsufficientDataError{Op: "optimizer", Detail: "fewer than 2 assets"}
	}
	complete := rm.CompleteRows()
	rows, n := complete.Rows(), complete.Cols()
	if rows < 2 {
		return nil, &contracts.InsufficientDataError{
			Op:      "optimizer",
			Tickers: complete.Tickers(),
			Detail:  fmt.Sprintf("%d complete rows", rows),
		}
	}

	data := make([]float64, 0, rows*n)
	for i := 0; i < rows; i++ {
		for j := 0; j < n; j++ {
			data = append(data, complete.At(i, j))
		}
	}
	x := mat.NewDense(rows, n, data)

	mean := make([]float64, n)
	for j := 0; j < n; j++ {
		mean[j] = stat.Mean(complete.Column(j), nil) * TradingDays
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, x, nil)
	cov.ScaleSym(TradingDays, &cov)

	return &Moments{
		Tickers:      complete.Tickers(),
		Mean:         mean,
		Covariance:   &cov,
		Observations: rows,
	}, nil
}

// PortfolioStats returns annualised return, volatility and Sharpe of weights.
// Sharpe is NaN when volatility is zero.
func PortfolioStats(weights, mean []float64, cov mat.Symmetric, riskFree float64) (ret, vol, sharpe float64) {
	ret = floats.Dot(weights, mean)
	w := mat.NewVecDense(len(weights), weights)
	variance := mat.Inner(w, cov, w)
	if variance < 0 {
		// rounding on a PSD matrix
		variance = 0
	}
	vol = math.Sqrt(variance)
	if vol == 0 {
		return ret, vol, math.NaN()
	}
	return ret, vol, (ret - riskFree) / vol
}
