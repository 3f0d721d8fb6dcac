// Package train runs the full-batch training loop with plateau scheduling,
// best-checkpoint retention and early stopping.
package train

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"workoutnet/internal/config"
	"workoutnet/internal/dataset"
	"workoutnet/internal/logging"
	"workoutnet/internal/metrics"
	"workoutnet/internal/nn"
)

// State is the trainer's position within an epoch or run.
type State int

const (
	Idle State = iota
	Training
	Validating
	Checkpointing
	EarlyStopped
	Completed
)

func (s State) String() string {
	switch s {
	case Training:
		return "training"
	case Validating:
		return "validating"
	case Checkpointing:
		return "checkpointing"
	case EarlyStopped:
		return "early-stopped"
	case Completed:
		return "completed"
	}
	return "idle"
}

// Options is the training policy.
type Options struct {
	LearningRate    float64
	WeightDecay     float64
	Epochs          int
	Patience        int
	PlateauPatience int
	PlateauFactor   float64
	ClipNorm        float64
	LogEvery        int
}

func OptionsFrom(c config.TrainConfig) Options {
	return Options{
		LearningRate:    c.LearningRate,
		WeightDecay:     c.WeightDecay,
		Epochs:          c.Epochs,
		Patience:        c.Patience,
		PlateauPatience: c.PlateauPatience,
		PlateauFactor:   c.PlateauFactor,
		ClipNorm:        c.ClipNorm,
		LogEvery:        c.LogEvery,
	}
}

// Data is a batch of flattened sequences with integer labels.
type Data struct {
	X [][]float32
	Y []int
}

func FromDataset(ds *dataset.Dataset) Data {
	return Data{X: ds.Inputs(), Y: ds.Labels()}
}

func (d Data) Len() int { return len(d.X) }

// Epoch is the record of one completed epoch. Epoch numbers start at 1.
type Epoch struct {
	Epoch     int     `json:"epoch"`
	TrainLoss float64 `json:"train_loss"`
	TrainAcc  float64 `json:"train_acc"`
	ValLoss   float64 `json:"val_loss"`
	ValAcc    float64 `json:"val_acc"`
	LR        float64 `json:"lr"`
	BestAcc   float64 `json:"best_acc"`
	Improved  bool    `json:"improved"`
	LRReduced bool    `json:"lr_reduced"`
}

// History holds per-epoch series for both splits.
type History struct {
	TrainLoss []float64
	TrainAcc  []float64
	ValLoss   []float64
	ValAcc    []float64
	LR        []float64
}

func (h *History) add(e Epoch) {
	h.TrainLoss = append(h.TrainLoss, e.TrainLoss)
	h.TrainAcc = append(h.TrainAcc, e.TrainAcc)
	h.ValLoss = append(h.ValLoss, e.ValLoss)
	h.ValAcc = append(h.ValAcc, e.ValAcc)
	h.LR = append(h.LR, e.LR)
}

// Result is the outcome of Fit.
type Result struct {
	Best         nn.Checkpoint
	BestAcc      float64
	BestEpoch    int // 0 when validation accuracy never improved
	Epochs       int
	EarlyStopped bool
	History      History
	Elapsed      time.Duration
}

// Trainer owns the live model, its optimizer and scheduler.
type Trainer struct {
	model nn.Trainable
	opts  Options
	opt   *nn.AdamW
	sched *nn.Plateau
	state State

	// OnEpoch, if set, is called after each epoch's checkpoint decision.
	OnEpoch func(Epoch)
}

func New(model nn.Trainable, opts Options) *Trainer {
	return &Trainer{
		model: model,
		opts:  opts,
		opt:   nn.NewAdamW(opts.LearningRate, opts.WeightDecay),
		sched: nn.NewPlateau(opts.PlateauFactor, opts.PlateauPatience),
	}
}

func (t *Trainer) State() State { return t.state }

// LearningRate is the optimizer's current rate.
func (t *Trainer) LearningRate() float64 { return t.opt.LearningRate() }

// Fit trains until the epoch ceiling or until Patience epochs pass without a
// strict validation-accuracy improvement. On return the model holds the best
// snapshot, or its final state if accuracy never improved.
func (t *Trainer) Fit(ctx context.Context, trainSet, valSet Data) (Result, error) {
	if trainSet.Len() == 0 || valSet.Len() == 0 {
		return Result{}, fmt.Errorf("empty split: train=%d val=%d", trainSet.Len(), valSet.Len())
	}
	var res Result
	patience := 0
	report := rate.Sometimes{Every: max(1, t.opts.LogEvery)}
	// burn the first slot so reports land on epochs that are multiples of Every
	report.Do(func() {})
	start := time.Now()
	logging.Info("training_start", map[string]any{
		"device": "cpu", "train": trainSet.Len(), "val": valSet.Len(),
		"params": nn.CountParams(t.model), "lr": t.opts.LearningRate, "epochs": t.opts.Epochs,
	})

	for epoch := 1; epoch <= t.opts.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		e := Epoch{Epoch: epoch}

		t.state = Training
		e.TrainLoss, e.TrainAcc = t.trainStep(trainSet)

		t.state = Validating
		e.ValLoss, e.ValAcc = t.validate(valSet)

		e.LRReduced = t.sched.Step(e.ValLoss, t.opt)
		e.LR = t.opt.LearningRate()
		if e.LRReduced {
			logging.Info("lr_reduced", map[string]any{"epoch": epoch, "lr": e.LR})
		}

		t.state = Checkpointing
		if e.ValAcc > res.BestAcc {
			res.BestAcc = e.ValAcc
			res.BestEpoch = epoch
			res.Best = t.model.Snapshot()
			e.Improved = true
			patience = 0
		} else {
			patience++
		}
		e.BestAcc = res.BestAcc
		res.History.add(e)
		res.Epochs = epoch
		metrics.ObserveEpoch(e.TrainLoss, e.TrainAcc, e.ValLoss, e.ValAcc, res.BestAcc, e.LR)
		if t.OnEpoch != nil {
			t.OnEpoch(e)
		}

		if patience >= t.opts.Patience {
			t.state = EarlyStopped
			res.EarlyStopped = true
			metrics.EarlyStops.Inc()
			logging.Info("early_stop", map[string]any{"epoch": epoch, "best_epoch": res.BestEpoch, "best_acc": res.BestAcc})
			break
		}
		report.Do(func() {
			logging.Info("epoch", map[string]any{
				"epoch": epoch, "train_acc": e.TrainAcc, "val_acc": e.ValAcc, "best": res.BestAcc,
				"train_loss": e.TrainLoss, "val_loss": e.ValLoss, "lr": e.LR,
				"plateau_bad_epochs": t.sched.BadEpochs(),
			})
		})
	}
	if t.state != EarlyStopped {
		t.state = Completed
	}

	if res.BestEpoch > 0 {
		if err := t.model.Load(res.Best); err != nil {
			return res, fmt.Errorf("restore best checkpoint: %w", err)
		}
	} else {
		res.Best = t.model.Snapshot()
	}
	res.Elapsed = time.Since(start)
	metrics.ObserveTrainDuration(start)
	logging.Info("training_done", map[string]any{
		"elapsed_s": res.Elapsed.Seconds(), "epochs": res.Epochs, "best_acc": res.BestAcc,
		"best_epoch": res.BestEpoch, "early_stopped": res.EarlyStopped,
	})
	return res, nil
}

// trainStep is one full-batch forward/backward pass and a single optimizer update.
func (t *Trainer) trainStep(d Data) (loss, acc float64) {
	t.model.ZeroGrad()
	scale := 1 / float64(d.Len())
	logits := make([][]float32, d.Len())
	for i, x := range d.X {
		y := d.Y[i]
		logits[i] = t.model.Accumulate(x, func(l []float32) []float32 {
			return nn.CrossEntropyGrad(l, y, scale)
		})
	}
	params := t.model.Params()
	nn.ClipGradNorm(params, t.opts.ClipNorm)
	t.opt.Step(params)
	return nn.MeanCrossEntropy(logits, d.Y), nn.Accuracy(logits, d.Y)
}

// validate never touches parameters or gradients.
func (t *Trainer) validate(d Data) (loss, acc float64) {
	logits := t.model.Forward(d.X)
	return nn.MeanCrossEntropy(logits, d.Y), nn.Accuracy(logits, d.Y)
}
