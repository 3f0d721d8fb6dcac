// Package jobs orchestrates the pipeline: build, split, train, evaluate,
// export and record.
package jobs

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"workoutnet/internal/activity"
	"workoutnet/internal/config"
	"workoutnet/internal/dataset"
	"workoutnet/internal/eval"
	"workoutnet/internal/logging"
	"workoutnet/internal/nn"
	"workoutnet/internal/split"
	"workoutnet/internal/store/sqlitevec"
	"workoutnet/internal/train"
)

// Deps are the optional collaborators of a run.
type Deps struct {
	// DB caches windows and records the run. May be nil.
	DB *sqlitevec.DB
	// FromCache trains on the windows cached by the last build instead of
	// rescanning the data directory. Requires DB.
	FromCache bool
	// OnEpoch observes every epoch after it is recorded.
	OnEpoch func(train.Epoch)
}

// Result is everything a run produced.
type Result struct {
	RunID   string
	Dataset *dataset.Dataset
	Build   dataset.Report // zero when loaded from cache
	Split   split.Result
	Train   train.Result
	Export  eval.Report
}

// BuildDataset scans the data directory and, when db is set, replaces the
// cached windows with the result.
func BuildDataset(ctx context.Context, db *sqlitevec.DB, cfg config.Config) (*dataset.Dataset, dataset.Report, error) {
	ds, rep, err := dataset.Load(cfg.Data)
	if err != nil {
		return nil, rep, err
	}
	if db != nil {
		if err := db.ReplaceWindows(ctx, ds); err != nil {
			return nil, rep, fmt.Errorf("cache windows: %w", err)
		}
		logging.Info("windows_cached", map[string]any{"windows": ds.Len()})
	}
	return ds, rep, nil
}

func loadDataset(ctx context.Context, cfg config.Config, deps Deps) (*dataset.Dataset, dataset.Report, error) {
	if !deps.FromCache {
		return BuildDataset(ctx, deps.DB, cfg)
	}
	if deps.DB == nil {
		return nil, dataset.Report{}, fmt.Errorf("training from cache needs a database")
	}
	ds, err := deps.DB.LoadWindows(ctx)
	if err != nil {
		return nil, dataset.Report{}, err
	}
	if ds.Steps != cfg.Data.WindowLen() {
		return nil, dataset.Report{}, fmt.Errorf("cached windows have %d steps, config wants %d; rebuild", ds.Steps, cfg.Data.WindowLen())
	}
	logging.Info("windows_loaded", map[string]any{"windows": ds.Len(), "per_class": ds.CountsMap()})
	return ds, dataset.Report{}, nil
}

// Split loads the dataset and reproduces the configured stratified split.
func Split(ctx context.Context, cfg config.Config, deps Deps) (*dataset.Dataset, dataset.Report, split.Result, error) {
	ds, rep, err := loadDataset(ctx, cfg, deps)
	if err != nil {
		return nil, rep, split.Result{}, err
	}
	sp, err := split.Stratified(ds, cfg.Split.ValFraction, rand.New(rand.NewSource(cfg.Split.Seed)))
	if err != nil {
		return ds, rep, sp, err
	}
	logging.Info("split_done", map[string]any{
		"train": sp.Train.Len(), "val": sp.Val.Len(),
		"train_per_class": sp.Train.CountsMap(), "val_per_class": sp.Val.CountsMap(),
	})
	return ds, rep, sp, nil
}

// RunTraining executes one full pipeline run.
func RunTraining(ctx context.Context, cfg config.Config, deps Deps) (Result, error) {
	var res Result
	if err := cfg.Validate(); err != nil {
		return res, err
	}
	ds, rep, sp, err := Split(ctx, cfg, deps)
	res.Dataset, res.Build, res.Split = ds, rep, sp
	if err != nil {
		return res, err
	}

	res.RunID = uuid.NewString()
	if deps.DB != nil {
		b, err := yaml.Marshal(cfg)
		if err != nil {
			return res, fmt.Errorf("encode run config: %w", err)
		}
		if err := deps.DB.CreateRun(ctx, res.RunID, time.Now().UTC(), string(b), sp.Train.Len(), sp.Val.Len()); err != nil {
			return res, fmt.Errorf("record run: %w", err)
		}
	}
	err = runModel(ctx, cfg, deps, &res)
	if deps.DB != nil {
		if err != nil {
			_ = deps.DB.FailRun(context.WithoutCancel(ctx), res.RunID, err)
		} else if ferr := deps.DB.FinishRun(ctx, sqlitevec.Run{
			ID:           res.RunID,
			Epochs:       res.Train.Epochs,
			BestEpoch:    res.Train.BestEpoch,
			BestAcc:      res.Train.BestAcc,
			EarlyStopped: res.Train.EarlyStopped,
			HalfAcc:      res.Export.HalfAcc,
			FullBytes:    res.Export.FullBytes,
			HalfBytes:    res.Export.HalfBytes,
		}); ferr != nil {
			return res, fmt.Errorf("record run: %w", ferr)
		}
	}
	return res, err
}

func runModel(ctx context.Context, cfg config.Config, deps Deps, res *Result) error {
	model := nn.NewLSTM(dataset.FeatureCount, cfg.Model.Hidden, activity.Count, rand.New(rand.NewSource(cfg.Model.Seed)))
	trainer := train.New(model, train.OptionsFrom(cfg.Train))
	trainer.OnEpoch = func(e train.Epoch) {
		if deps.DB != nil {
			if err := deps.DB.PutEpoch(ctx, res.RunID, sqlitevec.Epoch{
				Epoch: e.Epoch, TrainLoss: e.TrainLoss, TrainAcc: e.TrainAcc,
				ValLoss: e.ValLoss, ValAcc: e.ValAcc, LR: e.LR,
			}); err != nil {
				logging.Warn("epoch_record_failed", map[string]any{"epoch": e.Epoch, "error": err.Error()})
			}
		}
		if deps.OnEpoch != nil {
			deps.OnEpoch(e)
		}
	}
	trainData, valData := train.FromDataset(res.Split.Train), train.FromDataset(res.Split.Val)
	tr, err := trainer.Fit(ctx, trainData, valData)
	res.Train = tr
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Export.Dir, 0o755); err != nil {
		return err
	}
	ex := eval.Exporter{FullPath: cfg.Export.FullPath(), HalfPath: cfg.Export.HalfPath()}
	res.Export, err = ex.Export(ctx, model, valData)
	if err != nil {
		return err
	}
	res.Export.Full.Log(nn.Full)
	return nil
}
