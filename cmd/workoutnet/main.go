package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/cheggaaa/pb/v3"

	"workoutnet/internal/activity"
	"workoutnet/internal/api"
	"workoutnet/internal/cmdlog"
	"workoutnet/internal/config"
	"workoutnet/internal/dataset"
	"workoutnet/internal/eval"
	"workoutnet/internal/jobs"
	"workoutnet/internal/metrics"
	"workoutnet/internal/nn"
	"workoutnet/internal/store/sqlitevec"
	"workoutnet/internal/theme"
	"workoutnet/internal/train"
)

const defaultConfig = "./workoutnet.yaml"

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	var run func([]string) error
	switch cmd {
	case "init":
		run = cmdInit
	case "synth":
		run = cmdSynth
	case "build":
		run = cmdBuild
	case "train":
		run = cmdTrain
	case "eval":
		run = cmdEval
	case "runs":
		run = cmdRuns
	case "serve":
		run = cmdServe
	default:
		printHelp()
		return
	}
	if err := cmdlog.Run(cmd, func() error { return run(os.Args[2:]) }); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func printHelp() {
	theme.PrintBanner()
	fmt.Println("Usage: workoutnet <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init        Create a config file at ./workoutnet.yaml")
	fmt.Println("  synth       Write synthetic recording sessions into the data directory")
	fmt.Println("  build       Window the recordings and cache them in the database")
	fmt.Println("  train       Train, evaluate and export fp32/fp16 checkpoints")
	fmt.Println("  eval        Score an exported checkpoint on the validation split")
	fmt.Println("  runs        List recorded training runs")
	fmt.Println("  serve       Serve the run history over HTTP")
}

func loadConfig(path string) (config.Config, error) {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	return cfg, cfg.Validate()
}

func openDB(cfg config.Config) (*sqlitevec.DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DBPath), 0o755); err != nil {
		return nil, err
	}
	return sqlitevec.Open(cfg.Storage.DBPath)
}

func cmdInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("path", defaultConfig, "path to write config")
	_ = fs.Parse(args)
	if err := config.Save(*path, config.Default()); err != nil {
		return err
	}
	abs, _ := filepath.Abs(*path)
	theme.PrintBanner()
	fmt.Println("Config written to:", abs)
	return nil
}

func cmdSynth(args []string) error {
	fs := flag.NewFlagSet("synth", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfig, "config path")
	dir := fs.String("dir", "", "output directory (default: data.dir)")
	sessions := fs.Int("sessions", 10, "sessions per activity")
	rows := fs.Int("rows", 2000, "accelerometer rows per session")
	hrRows := fs.Int("hr-rows", 60, "heart-rate rows per session (0 = no heart-rate file)")
	noise := fs.Float64("noise", 0.05, "gaussian noise std-dev")
	seed := fs.Int64("seed", 1, "random seed")
	_ = fs.Parse(args)
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	root := cfg.Data.Dir
	if *dir != "" {
		root = *dir
	}
	err = dataset.WriteSynthetic(root, dataset.SynthOptions{
		SessionsPerActivity: *sessions,
		Rows:                *rows,
		SampleRate:          float64(cfg.Data.SampleRate),
		Noise:               *noise,
		AccelFile:           cfg.Data.AccelFile,
		HeartRateFile:       cfg.Data.HeartRateFile,
		HeartRateRows:       *hrRows,
	}, rand.New(rand.NewSource(*seed)))
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %d sessions per activity (%d activities) to %s\n", *sessions, activity.Count, root)
	return nil
}

func cmdBuild(args []string) error {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfig, "config path")
	_ = fs.Parse(args)
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	ds, rep, err := jobs.BuildDataset(context.Background(), db, cfg)
	if err != nil {
		return err
	}
	fmt.Printf("Dataset: %d windows, shape [%d, %d, %d]\n", ds.Len(), ds.Len(), ds.Steps, dataset.FeatureCount)
	stats := ds.Stats()
	fmt.Printf("  %-13s %8s %7s", "", "sessions", "windows")
	for _, name := range dataset.FeatureNames {
		fmt.Printf(" %18s", name+" mean±std")
	}
	fmt.Println()
	for _, a := range activity.All() {
		st := stats[a]
		fmt.Printf("  %-13s %8d %7d", a, rep.Found[a.String()], st.Windows)
		for f := range st.Mean {
			fmt.Printf(" %10.3f±%-7.3f", st.Mean[f], st.Std[f])
		}
		fmt.Println()
	}
	if len(rep.Skipped) > 0 {
		fmt.Printf("  skipped: %v\n", rep.Skipped)
	}
	fmt.Printf("  heart-rate fallbacks: %d\n", rep.Fallbacks)
	return nil
}

func cmdTrain(args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfig, "config path")
	cached := fs.Bool("cached", false, "train on the windows cached by build")
	progress := fs.Bool("progress", false, "show an epoch progress bar on stderr")
	_ = fs.Parse(args)
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	metrics.StartServer(cfg.Metrics.Addr)
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := jobs.Deps{DB: db, FromCache: *cached}
	if *progress {
		bar := pb.New(cfg.Train.Epochs).SetWriter(os.Stderr).Set("prefix", "epochs ").Start()
		defer bar.Finish()
		deps.OnEpoch = func(e train.Epoch) {
			bar.Set("suffix", fmt.Sprintf(" val_acc=%.3f lr=%.2g", e.ValAcc, e.LR)).Increment()
		}
	}
	res, err := jobs.RunTraining(ctx, cfg, deps)
	if err != nil {
		return err
	}
	printReport(res)
	return nil
}

func printReport(res jobs.Result) {
	tr, ex := res.Train, res.Export
	fmt.Println()
	fmt.Printf("Run %s\n", res.RunID)
	fmt.Printf("Best val accuracy: %.2f%% at epoch %d (%d epochs", 100*tr.BestAcc, tr.BestEpoch, tr.Epochs)
	if tr.EarlyStopped {
		fmt.Print(", early stopped")
	}
	fmt.Printf(", %s)\n", tr.Elapsed.Round(time.Millisecond))
	fmt.Println("Per-class accuracy:")
	printPerClass(ex.Full)
	fmt.Printf("Parameters: %d\n", ex.Params)
	fmt.Printf("fp32 checkpoint: %s (%.1f KB)\n", ex.FullPath, float64(ex.FullBytes)/1024)
	ratio := 0.0
	if ex.FullBytes > 0 {
		ratio = float64(ex.HalfBytes) / float64(ex.FullBytes)
	}
	fmt.Printf("fp16 checkpoint: %s (%.1f KB, %.0f%% of fp32)\n", ex.HalfPath, float64(ex.HalfBytes)/1024, 100*ratio)
	fmt.Printf("fp16 accuracy: %.2f%% (delta %+.2f%%)\n", 100*ex.HalfAcc, 100*ex.Delta)
}

func printPerClass(ev eval.Evaluation) {
	for _, c := range ev.PerClass {
		fmt.Printf("  %-13s %d/%d (%.1f%%)\n", c.Activity, c.Correct, c.Total, 100*c.Accuracy())
	}
}

func printConfusion(ev eval.Evaluation) {
	fmt.Println("Confusion matrix (rows = true, columns = predicted):")
	var head strings.Builder
	head.WriteString(fmt.Sprintf("  %-13s", ""))
	for _, name := range activity.Names() {
		head.WriteString(fmt.Sprintf(" %6.6s", name))
	}
	fmt.Println(head.String())
	for i, row := range ev.Confusion {
		var line strings.Builder
		line.WriteString(fmt.Sprintf("  %-13s", activity.Activity(i)))
		for _, v := range row {
			line.WriteString(fmt.Sprintf(" %6d", v))
		}
		fmt.Println(line.String())
	}
}

func cmdEval(args []string) error {
	fs := flag.NewFlagSet("eval", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfig, "config path")
	model := fs.String("model", "", "checkpoint file (default: export.dir/export.fullName)")
	cached := fs.Bool("cached", false, "rebuild the split from the windows cached by build")
	only := fs.String("activity", "", "score only validation windows of this activity")
	_ = fs.Parse(args)
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	path := *model
	if path == "" {
		path = cfg.Export.FullPath()
	}
	ctx := context.Background()
	m, prec, err := eval.LoadModel(ctx, path, nil)
	if err != nil {
		return err
	}

	deps := jobs.Deps{FromCache: *cached}
	if *cached {
		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		deps.DB = db
	}
	_, _, sp, err := jobs.Split(ctx, cfg, deps)
	if err != nil {
		return err
	}
	val := train.FromDataset(sp.Val)
	if *only != "" {
		a, err := activity.Parse(*only)
		if err != nil {
			return err
		}
		val = eval.Only(val, a)
	}
	if prec == nn.Half {
		val = eval.HalfData(val)
	}
	ev := eval.Evaluate(m, val)
	ev.Log(prec)
	fmt.Printf("%s (%s, %d params): accuracy %.2f%% on %d validation windows\n", path, prec, nn.CountParams(m), 100*ev.Accuracy, val.Len())
	printPerClass(ev)
	printConfusion(ev)
	return nil
}

func cmdRuns(args []string) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfig, "config path")
	limit := fs.Int("limit", 20, "number of runs to list")
	_ = fs.Parse(args)
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	runs, err := db.ListRuns(context.Background(), *limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}
	for _, r := range runs {
		fmt.Printf("%s  %s  %-9s epochs=%-4d best=%.3f@%d fp16=%.3f\n",
			r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Status, r.Epochs, r.BestAcc, r.BestEpoch, r.HalfAcc)
	}
	return nil
}

func cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfig, "config path")
	addr := fs.String("addr", "", "listen address (default: server.addr)")
	_ = fs.Parse(args)
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	fmt.Println("Serving run history on", cfg.Server.Addr)
	return api.SetupRouter(db).Run(cfg.Server.Addr)
}
