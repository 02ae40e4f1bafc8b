// Package report renders a calibration run's outcome as a human-readable
// text summary, a go-echarts HTML line chart of the per-round ZP vector,
// and a gonum/plot PNG of the ref and test median frequencies across rounds.
package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/tessw/photocal/internal/photometer/calibration"
	"github.com/tessw/photocal/internal/security"
)

// Write renders summary's text, HTML and PNG artefacts into dir, creating
// it if necessary. dir must resolve within the working directory or the
// system temp directory; this rejects a configured report path that was
// tampered with to escape its expected location.
func Write(dir string, summary calibration.Summary) error {
	if err := security.ValidateExportPath(dir); err != nil {
		return fmt.Errorf("report: output dir rejected: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("report: create output dir: %w", err)
	}

	if err := writeSummaryText(dir, summary); err != nil {
		return err
	}
	if err := writeZPChart(dir, summary); err != nil {
		return err
	}
	if err := writeTrendPlot(dir, summary); err != nil {
		return err
	}
	return nil
}

func writeSummaryText(dir string, summary calibration.Summary) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "calibration summary\n")
	fmt.Fprintf(&buf, "final zero-point: %.2f\n", summary.FinalZP)
	fmt.Fprintf(&buf, "rounds: %d\n\n", len(summary.Rounds))
	for _, r := range summary.Rounds {
		fmt.Fprintf(&buf, "round %d: zp=%.2f ref_freq=%.2fHz ref_mag=%.3f test_freq=%.2fHz test_mag=%.3f\n",
			r.Round, r.ZPDiff, r.Ref.FreqMedian, r.Ref.Magnitude, r.Test.FreqMedian, r.Test.Magnitude)
	}
	return os.WriteFile(filepath.Join(dir, "summary.txt"), buf.Bytes(), 0o644)
}

// writeZPChart renders the per-round ZP vector as an interactive HTML line
// chart, so an operator can visually check for outlier rounds before the
// mode-or-median aggregation is trusted.
func writeZPChart(dir string, summary calibration.Summary) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Per-round zero-point"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Round"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "ZP"}),
	)

	rounds := make([]string, len(summary.Rounds))
	data := make([]opts.LineData, len(summary.Rounds))
	for i, r := range summary.Rounds {
		rounds[i] = fmt.Sprintf("%d", r.Round)
		data[i] = opts.LineData{Value: r.ZPDiff}
	}
	line.SetXAxis(rounds).AddSeries("zp_round", data)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return fmt.Errorf("report: render ZP chart: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "zp_rounds.html"), buf.Bytes(), 0o644)
}

// writeTrendPlot renders ref/test median frequency across rounds as a PNG,
// useful for spotting drift in the source itself rather than the derived ZP.
func writeTrendPlot(dir string, summary calibration.Summary) error {
	if len(summary.Rounds) == 0 {
		return nil
	}

	p := plot.New()
	p.Title.Text = "Median frequency per round"
	p.X.Label.Text = "Round"
	p.Y.Label.Text = "Frequency (Hz)"

	refPts := make(plotter.XYs, len(summary.Rounds))
	testPts := make(plotter.XYs, len(summary.Rounds))
	for i, r := range summary.Rounds {
		refPts[i] = plotter.XY{X: float64(r.Round), Y: r.Ref.FreqMedian}
		testPts[i] = plotter.XY{X: float64(r.Round), Y: r.Test.FreqMedian}
	}

	refLine, err := plotter.NewLine(refPts)
	if err != nil {
		return fmt.Errorf("report: build ref line: %w", err)
	}
	testLine, err := plotter.NewLine(testPts)
	if err != nil {
		return fmt.Errorf("report: build test line: %w", err)
	}

	p.Add(refLine, testLine)
	p.Legend.Add("ref", refLine)
	p.Legend.Add("test", testLine)

	if err := p.Save(10*vg.Inch, 5*vg.Inch, filepath.Join(dir, "frequency_trend.png")); err != nil {
		return fmt.Errorf("report: save frequency trend plot: %w", err)
	}
	return nil
}
