package jobs

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"workoutnet/internal/config"
	"workoutnet/internal/dataset"
	"workoutnet/internal/store/sqlitevec"
	"workoutnet/internal/train"
)

func tinyConfig(t *testing.T) config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Data.Dir = filepath.Join(root, "data")
	cfg.Data.WindowSec = 1
	cfg.Data.SampleRate = 10
	cfg.Model.Hidden = 4
	cfg.Train.Epochs = 5
	cfg.Export.Dir = filepath.Join(root, "out")
	err := dataset.WriteSynthetic(cfg.Data.Dir, dataset.SynthOptions{
		SessionsPerActivity: 4,
		Rows:                40,
		SampleRate:          10,
		Noise:               0.05,
		AccelFile:           cfg.Data.AccelFile,
		HeartRateFile:       cfg.Data.HeartRateFile,
		HeartRateRows:       5,
	}, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func openDB(t *testing.T) *sqlitevec.DB {
	t.Helper()
	db, err := sqlitevec.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunTrainingRecordsRun(t *testing.T) {
	cfg := tinyConfig(t)
	db := openDB(t)
	ctx := context.Background()

	var seen []int
	res, err := RunTraining(ctx, cfg, Deps{DB: db, OnEpoch: func(e train.Epoch) { seen = append(seen, e.Epoch) }})
	if err != nil {
		t.Fatal(err)
	}
	if res.Dataset.Len() != 96 || res.Split.Val.Len() != 20 || res.Split.Train.Len() != 76 {
		t.Fatalf("windows=%d train=%d val=%d", res.Dataset.Len(), res.Split.Train.Len(), res.Split.Val.Len())
	}
	if len(seen) != 5 || res.Train.Epochs != 5 {
		t.Fatalf("epochs seen=%v result=%d", seen, res.Train.Epochs)
	}
	for _, p := range []string{cfg.Export.FullPath(), cfg.Export.HalfPath()} {
		if _, err := os.Stat(p); err != nil {
			t.Fatal(err)
		}
	}

	run, err := db.GetRun(ctx, res.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != sqlitevec.StatusComplete || run.Epochs != 5 || run.TrainSize != 76 || run.ValSize != 20 {
		t.Fatalf("run=%+v", run)
	}
	if run.FullBytes != res.Export.FullBytes || run.HalfAcc != res.Export.HalfAcc {
		t.Fatalf("run=%+v export=%+v", run, res.Export)
	}
	eps, err := db.LoadEpochs(ctx, res.RunID)
	if err != nil || len(eps) != 5 {
		t.Fatalf("epochs: %v %d", err, len(eps))
	}

	cached, err := db.LoadWindows(ctx)
	if err != nil || cached.Len() != 96 {
		t.Fatalf("cache: %v", err)
	}
}

func TestRunTrainingFromCacheReproducesSplit(t *testing.T) {
	cfg := tinyConfig(t)
	db := openDB(t)
	ctx := context.Background()
	if _, _, err := BuildDataset(ctx, db, cfg); err != nil {
		t.Fatal(err)
	}
	_, _, fromFiles, err := Split(ctx, cfg, Deps{})
	if err != nil {
		t.Fatal(err)
	}
	_, _, fromCache, err := Split(ctx, cfg, Deps{DB: db, FromCache: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(fromFiles.ValIdx) != len(fromCache.ValIdx) {
		t.Fatal("split sizes differ")
	}
	for i := range fromFiles.ValIdx {
		if fromFiles.ValIdx[i] != fromCache.ValIdx[i] {
			t.Fatalf("val index %d differs", i)
		}
	}

	cfg.Data.SampleRate = 20
	if _, _, _, err := Split(ctx, cfg, Deps{DB: db, FromCache: true}); err == nil {
		t.Fatal("expected window length mismatch")
	}
}

func TestRunTrainingFromCacheNeedsDB(t *testing.T) {
	cfg := tinyConfig(t)
	if _, err := RunTraining(context.Background(), cfg, Deps{FromCache: true}); err == nil {
		t.Fatal("expected error")
	}
}

func TestRunTrainingMarksFailedRun(t *testing.T) {
	cfg := tinyConfig(t)
	db := openDB(t)
	ctx := context.Background()
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.Export.Dir = filepath.Join(blocker, "out")
	cfg.Train.Epochs = 1

	res, err := RunTraining(ctx, cfg, Deps{DB: db})
	if err == nil {
		t.Fatal("expected export error")
	}
	run, gerr := db.GetRun(ctx, res.RunID)
	if gerr != nil || run.Status != sqlitevec.StatusFailed || run.Error == "" {
		t.Fatalf("run=%+v err=%v", run, gerr)
	}
}

func TestRunTrainingMissingDataDir(t *testing.T) {
	cfg := config.Default()
	cfg.Data.Dir = filepath.Join(t.TempDir(), "absent")
	if _, err := RunTraining(context.Background(), cfg, Deps{}); err == nil {
		t.Fatal("expected error for a missing data directory")
	}
}
