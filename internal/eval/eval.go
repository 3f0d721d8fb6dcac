// Package eval scores a trained model on the validation split and exports it
// at full and half precision.
package eval

import (
	"context"
	"fmt"

	"workoutnet/internal/activity"
	"workoutnet/internal/logging"
	"workoutnet/internal/metrics"
	"workoutnet/internal/nn"
	"workoutnet/internal/store/ckptdb"
	"workoutnet/internal/train"
)

// ClassAccuracy is the validation hit rate of one activity.
type ClassAccuracy struct {
	Activity activity.Activity `json:"activity"`
	Correct  int               `json:"correct"`
	Total    int               `json:"total"`
}

// Accuracy is Correct/Total, or 0 for a class with no samples.
func (c ClassAccuracy) Accuracy() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Correct) / float64(c.Total)
}

// Evaluation is one model scored against one labelled set.
type Evaluation struct {
	Predictions []int
	Accuracy    float64
	PerClass    []ClassAccuracy
	// Confusion[true][predicted]
	Confusion [][]int
}

// Evaluate runs m over d.
func Evaluate(m nn.Model, d train.Data) Evaluation {
	ev := Evaluation{
		PerClass:  make([]ClassAccuracy, activity.Count),
		Confusion: make([][]int, activity.Count),
	}
	for i, a := range activity.All() {
		ev.PerClass[i].Activity = a
		ev.Confusion[i] = make([]int, activity.Count)
	}
	if d.Len() == 0 {
		return ev
	}
	ev.Predictions = nn.Predict(m, d.X)
	correct := 0
	for i, p := range ev.Predictions {
		y := d.Y[i]
		if y < 0 || y >= activity.Count || p < 0 || p >= activity.Count {
			continue
		}
		ev.Confusion[y][p]++
		ev.PerClass[y].Total++
		if p == y {
			ev.PerClass[y].Correct++
			correct++
		}
	}
	ev.Accuracy = float64(correct) / float64(d.Len())
	return ev
}

// Log writes one class_accuracy line per activity.
func (ev Evaluation) Log(precision nn.Precision) {
	for _, c := range ev.PerClass {
		logging.Info("class_accuracy", map[string]any{
			"precision": precision.String(),
			"activity":  c.Activity.String(),
			"correct":   c.Correct,
			"total":     c.Total,
			"accuracy":  c.Accuracy(),
		})
	}
}

// Report describes an exported model pair.
type Report struct {
	Params    int     `json:"params"`
	FullPath  string  `json:"full_path"`
	HalfPath  string  `json:"half_path"`
	FullBytes int64   `json:"full_bytes"`
	HalfBytes int64   `json:"half_bytes"`
	FullAcc   float64 `json:"full_acc"`
	HalfAcc   float64 `json:"half_acc"`
	// Delta is HalfAcc - FullAcc.
	Delta float64 `json:"delta"`

	Full Evaluation `json:"-"`
	Half Evaluation `json:"-"`
}

// Rebuild turns a checkpoint back into a runnable model.
type Rebuild func(nn.Checkpoint) (nn.Model, error)

// RebuildLSTM is the Rebuild for LSTM checkpoints. Half-precision
// checkpoints yield a model that also runs at half precision.
func RebuildLSTM(c nn.Checkpoint) (nn.Model, error) {
	m, err := nn.NewLSTMFromCheckpoint(c)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Exporter writes full and half precision checkpoints and scores both.
type Exporter struct {
	Rebuild  Rebuild
	FullPath string
	HalfPath string
}

// Export evaluates m at full precision, writes its checkpoint, derives the
// half-precision copy by casting every weight, evaluates that copy on
// half-precision inputs and writes it too. m itself is not modified.
func (e Exporter) Export(ctx context.Context, m nn.Model, val train.Data) (Report, error) {
	rebuild := e.Rebuild
	if rebuild == nil {
		rebuild = RebuildLSTM
	}
	full := m.Snapshot()
	rep := Report{Params: full.NumParams(), FullPath: e.FullPath, HalfPath: e.HalfPath}
	rep.Full = Evaluate(m, val)
	rep.FullAcc = rep.Full.Accuracy
	n, err := ckptdb.Write(ctx, e.FullPath, full)
	if err != nil {
		return rep, fmt.Errorf("export full precision: %w", err)
	}
	rep.FullBytes = n

	half, err := rebuild(full.ToHalf())
	if err != nil {
		return rep, fmt.Errorf("build half precision model: %w", err)
	}
	rep.Half = Evaluate(half, HalfData(val))
	rep.HalfAcc = rep.Half.Accuracy
	n, err = ckptdb.Write(ctx, e.HalfPath, half.Snapshot())
	if err != nil {
		return rep, fmt.Errorf("export half precision: %w", err)
	}
	rep.HalfBytes = n
	rep.Delta = rep.HalfAcc - rep.FullAcc

	metrics.ExportBytes.WithLabelValues(nn.Full.String()).Set(float64(rep.FullBytes))
	metrics.ExportBytes.WithLabelValues(nn.Half.String()).Set(float64(rep.HalfBytes))
	metrics.ExportAccuracy.WithLabelValues(nn.Full.String()).Set(rep.FullAcc)
	metrics.ExportAccuracy.WithLabelValues(nn.Half.String()).Set(rep.HalfAcc)
	logging.Info("export_done", map[string]any{
		"params":     rep.Params,
		"full_path":  rep.FullPath,
		"full_bytes": rep.FullBytes,
		"full_acc":   rep.FullAcc,
		"half_path":  rep.HalfPath,
		"half_bytes": rep.HalfBytes,
		"half_acc":   rep.HalfAcc,
		"delta":      rep.Delta,
	})
	return rep, nil
}

// Only keeps the samples of d labelled a.
func Only(d train.Data, a activity.Activity) train.Data {
	var out train.Data
	for i, y := range d.Y {
		if y == a.Label() {
			out.X = append(out.X, d.X[i])
			out.Y = append(out.Y, y)
		}
	}
	return out
}

// HalfData rounds every input of d to half precision. Labels are shared.
func HalfData(d train.Data) train.Data {
	return train.Data{X: nn.HalfInputs(d.X), Y: d.Y}
}

// LoadModel reads a checkpoint file and rebuilds it. The returned precision
// tells the caller whether inputs must be rounded with HalfData.
func LoadModel(ctx context.Context, path string, rebuild Rebuild) (nn.Model, nn.Precision, error) {
	if rebuild == nil {
		rebuild = RebuildLSTM
	}
	c, err := ckptdb.Read(ctx, path)
	if err != nil {
		return nil, nn.Full, err
	}
	m, err := rebuild(c)
	if err != nil {
		return nil, nn.Full, fmt.Errorf("%s: %w", path, err)
	}
	if c.DType() == nn.F16 {
		return m, nn.Half, nil
	}
	return m, nn.Full, nil
}
