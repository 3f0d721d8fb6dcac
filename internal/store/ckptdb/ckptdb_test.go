package ckptdb

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"workoutnet/internal/nn"
)

func TestWriteReadFullAndHalf(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	m := nn.NewLSTM(4, 32, 6, rand.New(rand.NewSource(1)))
	full := m.Snapshot()
	half := full.ToHalf()

	fullSize, err := Write(ctx, filepath.Join(dir, "m.ckpt"), full)
	if err != nil {
		t.Fatal(err)
	}
	halfSize, err := Write(ctx, filepath.Join(dir, "m16.ckpt"), half)
	if err != nil {
		t.Fatal(err)
	}
	if fullSize <= 0 || halfSize <= 0 || halfSize >= fullSize {
		t.Fatalf("sizes full=%d half=%d", fullSize, halfSize)
	}

	gotFull, err := Read(ctx, filepath.Join(dir, "m.ckpt"))
	if err != nil {
		t.Fatal(err)
	}
	if !gotFull.Equal(full) || gotFull.Meta["arch"] != "lstm" || gotFull.Meta["hidden"] != "32" {
		t.Fatalf("full checkpoint did not round trip: meta=%v", gotFull.Meta)
	}
	gotHalf, err := Read(ctx, filepath.Join(dir, "m16.ckpt"))
	if err != nil {
		t.Fatal(err)
	}
	if !gotHalf.Equal(half) || gotHalf.DType() != nn.F16 {
		t.Fatal("half checkpoint did not round trip")
	}
}

func TestWriteOverwrites(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "m.ckpt")
	a := nn.NewLSTM(4, 4, 6, rand.New(rand.NewSource(1))).Snapshot()
	b := nn.NewLSTM(4, 4, 6, rand.New(rand.NewSource(2))).Snapshot()
	if _, err := Write(ctx, path, a); err != nil {
		t.Fatal(err)
	}
	if _, err := Write(ctx, path, b); err != nil {
		t.Fatal(err)
	}
	got, err := Read(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(b) {
		t.Fatal("second write did not replace the first")
	}
}

func TestReadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.ckpt")
	if _, err := Read(context.Background(), path); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("Read must not create the file")
	}
}

func TestWriteUnwritablePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "no", "such", "dir", "m.ckpt")
	if _, err := Write(context.Background(), path, nn.Checkpoint{}); err == nil {
		t.Fatal("expected error writing into a missing directory")
	}
}

func TestWriteReportsEncodeErrors(t *testing.T) {
	c := nn.Checkpoint{Tensors: []nn.Tensor{{Name: "w", Shape: []int{1}, DType: "int8", Data: []float32{1}}}}
	_, err := Write(context.Background(), filepath.Join(t.TempDir(), "m.ckpt"), c)
	if err == nil || !strings.Contains(err.Error(), "unsupported dtype") {
		t.Fatalf("expected wrapped encode error, got %v", err)
	}
}
