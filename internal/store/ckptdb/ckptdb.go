// Package ckptdb persists model checkpoints as standalone SQLite files: one
// row per tensor, values as little-endian float32 or float16 BLOBs.
package ckptdb

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	_ "modernc.org/sqlite"

	"workoutnet/internal/nn"
)

const schema = `
CREATE TABLE meta (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL
);
CREATE TABLE tensors (
  ord INTEGER PRIMARY KEY,
  name TEXT NOT NULL UNIQUE,
  dtype TEXT NOT NULL,
  shape TEXT NOT NULL,
  data BLOB NOT NULL
);
`

// Write replaces path with a checkpoint file and returns its size in bytes.
func Write(ctx context.Context, path string, c nn.Checkpoint) (int64, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, err
	}
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return 0, err
	}
	if err := write(ctx, d, c); err != nil {
		_ = d.Close()
		return 0, fmt.Errorf("write checkpoint %s: %w", path, err)
	}
	if err := d.Close(); err != nil {
		return 0, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func write(ctx context.Context, d *sql.DB, c nn.Checkpoint) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return err
	}
	keys := make([]string, 0, len(c.Meta))
	for k := range c.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta(key, value) VALUES(?,?)`, k, c.Meta[k]); err != nil {
			return err
		}
	}
	for i, t := range c.Tensors {
		shape, err := json.Marshal(t.Shape)
		if err != nil {
			return fmt.Errorf("%s: encode shape: %w", t.Name, err)
		}
		blob, err := encode(t)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO tensors(ord, name, dtype, shape, data) VALUES(?,?,?,?,?)`, i, t.Name, string(t.DType), string(shape), blob); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Read loads a checkpoint file written by Write.
func Read(ctx context.Context, path string) (nn.Checkpoint, error) {
	var c nn.Checkpoint
	if _, err := os.Stat(path); err != nil {
		return c, err
	}
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return c, err
	}
	defer d.Close()

	rows, err := d.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return c, fmt.Errorf("read checkpoint %s: %w", path, err)
	}
	c.Meta = map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return c, err
		}
		c.Meta[k] = v
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return c, err
	}

	rows, err = d.QueryContext(ctx, `SELECT name, dtype, shape, data FROM tensors ORDER BY ord`)
	if err != nil {
		return c, fmt.Errorf("read checkpoint %s: %w", path, err)
	}
	defer rows.Close()
	for rows.Next() {
		var t nn.Tensor
		var dtype, shape string
		var blob []byte
		if err := rows.Scan(&t.Name, &dtype, &shape, &blob); err != nil {
			return c, err
		}
		t.DType = nn.DType(dtype)
		if err := json.Unmarshal([]byte(shape), &t.Shape); err != nil {
			return c, fmt.Errorf("%s: bad shape: %w", t.Name, err)
		}
		if t.Data, err = decode(t.DType, blob); err != nil {
			return c, fmt.Errorf("%s: %w", t.Name, err)
		}
		n := 1
		for _, s := range t.Shape {
			n *= s
		}
		if n != len(t.Data) {
			return c, fmt.Errorf("%s: shape %v holds %d values, blob has %d", t.Name, t.Shape, n, len(t.Data))
		}
		c.Tensors = append(c.Tensors, t)
	}
	return c, rows.Err()
}

func encode(t nn.Tensor) ([]byte, error) {
	switch t.DType {
	case nn.F32:
		b := make([]byte, 4*len(t.Data))
		for i, v := range t.Data {
			binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
		}
		return b, nil
	case nn.F16:
		b := make([]byte, 2*len(t.Data))
		for i, v := range t.Data {
			binary.LittleEndian.PutUint16(b[2*i:], nn.HalfBits(v))
		}
		return b, nil
	}
	return nil, fmt.Errorf("%s: unsupported dtype %q", t.Name, t.DType)
}

func decode(dtype nn.DType, b []byte) ([]float32, error) {
	switch dtype {
	case nn.F32:
		if len(b)%4 != 0 {
			return nil, fmt.Errorf("float32 blob of %d bytes", len(b))
		}
		v := make([]float32, len(b)/4)
		for i := range v {
			v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
		}
		return v, nil
	case nn.F16:
		if len(b)%2 != 0 {
			return nil, fmt.Errorf("float16 blob of %d bytes", len(b))
		}
		v := make([]float32, len(b)/2)
		for i := range v {
			v[i] = nn.FromHalfBits(binary.LittleEndian.Uint16(b[2*i:]))
		}
		return v, nil
	}
	return nil, fmt.Errorf("unsupported dtype %q", dtype)
}
