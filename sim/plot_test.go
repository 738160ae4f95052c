package sim

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTimeSeriesPlot(t *testing.T) {
	assert := assert.New(t)

	ts := TimeSeries{
		Name:   "series 0",
		Mean:   []float64{0, 1, 2},
		Sd:     []float64{1, 1, 1},
		Truth:  []float64{0, 1, 2},
		Points: []float64{0.1, math.NaN(), 2.2},
	}

	p, err := NewTimeSeriesPlot(ts)
	assert.NotNil(p)
	assert.NoError(err)

	// band, truth and points are optional
	p, err = NewTimeSeriesPlot(TimeSeries{Mean: []float64{0, 1}})
	assert.NotNil(p)
	assert.NoError(err)

	p, err = NewTimeSeriesPlot(TimeSeries{})
	assert.Nil(p)
	assert.Error(err)

	p, err = NewTimeSeriesPlot(TimeSeries{Mean: []float64{0, 1}, Sd: []float64{1}})
	assert.Nil(p)
	assert.Error(err)
}

func TestSaveTimeSeriesGrid(t *testing.T) {
	assert := assert.New(t)

	series := []TimeSeries{
		{Name: "a", Mean: []float64{0, 1, 2}, Sd: []float64{1, 1, 1}},
		{Name: "b", Mean: []float64{2, 1, 0}},
		{Name: "c", Mean: []float64{1, 1, 1}},
	}

	path := filepath.Join(t.TempDir(), "grid.png")
	assert.NoError(SaveTimeSeriesGrid(path, 2, series))

	info, err := os.Stat(path)
	assert.NoError(err)
	assert.Greater(info.Size(), int64(0))

	assert.Error(SaveTimeSeriesGrid(path, 2, nil))
	assert.Error(SaveTimeSeriesGrid(path, 0, series))
}

func TestNewTracePlot(t *testing.T) {
	assert := assert.New(t)

	p, err := NewTracePlot([]float64{-10, -5, -4.5})
	assert.NotNil(p)
	assert.NoError(err)

	p, err = NewTracePlot(nil)
	assert.Nil(p)
	assert.Error(err)
}
