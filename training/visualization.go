package training

import (
	"encoding/json"
	"fmt"
	"time"
)

// PlotType identifies the kind of plot a payload describes.
type PlotType string

const (
	TrainingCurves      PlotType = "training_curves"
	ConfusionMatrixPlot PlotType = "confusion_matrix"
)

// PlotData is the JSON payload handed to an external plotting sink. The
// orchestrator only computes the numeric series; rendering happens
// elsewhere.
type PlotData struct {
	PlotType  PlotType     `json:"plot_type"`
	Title     string       `json:"title"`
	Timestamp time.Time    `json:"timestamp"`
	ModelName string       `json:"model_name"`
	Series    []SeriesData `json:"series"`
	Config    PlotConfig   `json:"config"`
}

// SeriesData is a single data series in a plot.
type SeriesData struct {
	Name string      `json:"name"`
	Type string      `json:"type"` // "line", "heatmap"
	Data []DataPoint `json:"data"`
}

// DataPoint is one point of a series; Z carries heatmap cell values.
type DataPoint struct {
	X     interface{} `json:"x"`
	Y     interface{} `json:"y"`
	Z     interface{} `json:"z,omitempty"`
	Label string      `json:"label,omitempty"`
}

// PlotConfig carries axis labels and legend hints for the sink.
type PlotConfig struct {
	XAxisLabel string `json:"x_axis_label"`
	YAxisLabel string `json:"y_axis_label"`
	ShowLegend bool   `json:"show_legend"`
}

// CurveCollector accumulates the training curve and final confusion matrix
// and turns them into plot payloads.
type CurveCollector struct {
	modelName  string
	records    []EpochRecord
	matrix     *ConfusionMatrix
	classNames []string
}

// NewCurveCollector creates a collector for the named model.
func NewCurveCollector(modelName string) *CurveCollector {
	return &CurveCollector{modelName: modelName}
}

// RecordEpoch appends one epoch record to the curve.
func (c *CurveCollector) RecordEpoch(r EpochRecord) {
	c.records = append(c.records, r)
}

// RecordCurve replaces the collected curve with a completed one.
func (c *CurveCollector) RecordCurve(records []EpochRecord) {
	c.records = append([]EpochRecord(nil), records...)
}

// RecordConfusionMatrix stores the test confusion matrix. classNames may be
// nil, in which case numeric labels are used.
func (c *CurveCollector) RecordConfusionMatrix(matrix *ConfusionMatrix, classNames []string) {
	c.matrix = matrix
	c.classNames = classNames
}

// TrainingCurvesPlot builds the loss-curve payload: one line series each
// for training loss, validation loss and validation accuracy by epoch.
func (c *CurveCollector) TrainingCurvesPlot() PlotData {
	trainLoss := make([]DataPoint, len(c.records))
	validLoss := make([]DataPoint, len(c.records))
	validAcc := make([]DataPoint, len(c.records))
	for i, r := range c.records {
		trainLoss[i] = DataPoint{X: r.Epoch, Y: r.TrainLoss}
		validLoss[i] = DataPoint{X: r.Epoch, Y: r.ValidLoss}
		validAcc[i] = DataPoint{X: r.Epoch, Y: r.ValidAccuracy}
	}

	return PlotData{
		PlotType:  TrainingCurves,
		Title:     fmt.Sprintf("Training Curves - %s", c.modelName),
		Timestamp: time.Now(),
		ModelName: c.modelName,
		Series: []SeriesData{
			{Name: "Training Loss", Type: "line", Data: trainLoss},
			{Name: "Validation Loss", Type: "line", Data: validLoss},
			{Name: "Validation Accuracy", Type: "line", Data: validAcc},
		},
		Config: PlotConfig{
			XAxisLabel: "Epoch",
			YAxisLabel: "Loss / Accuracy",
			ShowLegend: true,
		},
	}
}

// ConfusionMatrixPlotData builds the heatmap payload for the test confusion
// matrix.
func (c *CurveCollector) ConfusionMatrixPlotData() PlotData {
	if c.matrix == nil {
		return PlotData{}
	}

	className := func(i int) string {
		if i < len(c.classNames) {
			return c.classNames[i]
		}
		return fmt.Sprintf("%d", i)
	}

	var data []DataPoint
	for i, row := range c.matrix.Matrix {
		for j, value := range row {
			data = append(data, DataPoint{
				X:     j,
				Y:     i,
				Z:     value,
				Label: fmt.Sprintf("True: %s, Pred: %s", className(i), className(j)),
			})
		}
	}

	return PlotData{
		PlotType:  ConfusionMatrixPlot,
		Title:     fmt.Sprintf("Confusion Matrix - %s", c.modelName),
		Timestamp: time.Now(),
		ModelName: c.modelName,
		Series:    []SeriesData{{Name: "Confusion Matrix", Type: "heatmap", Data: data}},
		Config: PlotConfig{
			XAxisLabel: "Predicted Class",
			YAxisLabel: "True Class",
		},
	}
}

// ToJSON serializes a payload for the plotting sink.
func (pd PlotData) ToJSON() (string, error) {
	data, err := json.MarshalIndent(pd, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal plot data: %w", err)
	}
	return string(data), nil
}
