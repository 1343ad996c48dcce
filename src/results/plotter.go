package results

import (
	"log/slog"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"tradesim/src/datamodels"
	"tradesim/src/utils/errors"
)

// ResultPlotter renders a run's balance and funds curves to an image file.
type ResultPlotter struct {
	history  []datamodels.PeriodStats
	filename string
}

func NewResultPlotter() *ResultPlotter {
	return &ResultPlotter{}
}

func (pb *ResultPlotter) WithHistory(history []datamodels.PeriodStats) *ResultPlotter {
	pb.history = history
	return pb
}

func (pb *ResultPlotter) WithFileOutput(filename string) *ResultPlotter {
	pb.filename = filename
	return pb
}

func (pb *ResultPlotter) Plot() error {
	if len(pb.history) == 0 {
		return errors.New("no stats history to plot")
	}
	if pb.filename == "" {
		return errors.New("no output filename set")
	}

	p := plot.New()
	p.Title.Text = "Backtest Balance"
	p.X.Label.Text = "Period"
	p.Y.Label.Text = "Value"

	balancePts := make(plotter.XYs, len(pb.history))
	fundsPts := make(plotter.XYs, len(pb.history))
	for i, stat := range pb.history {
		balancePts[i].X = float64(stat.Period)
		balancePts[i].Y = stat.Balance
		fundsPts[i].X = float64(stat.Period)
		fundsPts[i].Y = stat.Funds
	}

	if err := plotutil.AddLinePoints(p,
		"Balance", balancePts,
		"Funds", fundsPts); err != nil {
		return errors.Wrap(err, "adding plot lines")
	}

	if err := os.MkdirAll(filepath.Dir(pb.filename), 0755); err != nil {
		return errors.Wrap(err, "creating plot directory")
	}
	if err := p.Save(10*vg.Inch, 6*vg.Inch, pb.filename); err != nil {
		return errors.Wrap(err, "saving plot")
	}
	slog.Info("wrote balance plot", "filename", pb.filename)
	return nil
}
