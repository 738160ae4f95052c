package smooth

import (
	"github.com/vbayes/lgssm/estimate"
	"github.com/vbayes/lgssm/kalman"
)

// Smoother computes smoothed chain estimates from a forward filtering pass.
type Smoother interface {
	// Smooth smooths the filtered estimates
	Smooth(f *kalman.Filtered) ([]*estimate.Smoothed, error)
}
