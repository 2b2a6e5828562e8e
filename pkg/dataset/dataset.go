// Package dataset loads tabular binary-classification data and splits it into
// stable per-client partitions.
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"os"
	"strconv"
	"strings"

	pkgerrors "github.com/absmach/fedlearn/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// HeartDiseaseURL is the processed Cleveland heart-disease file.
const HeartDiseaseURL = "https://archive.ics.uci.edu/ml/machine-learning-databases/heart-disease/processed.cleveland.data"

const (
	heartColumns  = 14
	missingMarker = "?"
)

var errUnexpectedStatus = errors.New("unexpected response status")

// Split is a feature matrix with one binary label per row.
type Split struct {
	X [][]float64
	Y []float64
}

func (s Split) Len() int {
	return len(s.Y)
}

func (s Split) Features() int {
	if len(s.X) == 0 {
		return 0
	}

	return len(s.X[0])
}

// Partition is one client's private data.
type Partition struct {
	Train Split
	Test  Split
}

type Config struct {
	Source       string  `env:"SOURCE"        envDefault:""`
	Clients      int     `env:"CLIENTS"       envDefault:"2"`
	TestFraction float64 `env:"TEST_FRACTION" envDefault:"0.2"`
	Seed         uint64  `env:"SEED"          envDefault:"42"`
	// Synthetic is the number of generated rows used when Source is empty.
	Synthetic int `env:"SYNTHETIC" envDefault:"300"`
	// SyntheticFeatures matches the heart-disease feature count by default.
	SyntheticFeatures int `env:"SYNTHETIC_FEATURES" envDefault:"13"`
}

// Load reads the configured source, standardizes it and returns one partition
// per client.
func Load(ctx context.Context, cfg Config) ([]Partition, error) {
	if cfg.Clients < 1 {
		return nil, fmt.Errorf("%w: clients must be positive", pkgerrors.ErrInvalidConfig)
	}
	if cfg.TestFraction < 0 || cfg.TestFraction >= 1 {
		return nil, fmt.Errorf("%w: test fraction must be in [0, 1)", pkgerrors.ErrInvalidConfig)
	}

	var (
		data Split
		err  error
	)
	switch cfg.Source {
	case "":
		data = Synthetic(cfg.Synthetic, cfg.SyntheticFeatures, cfg.Seed)
	default:
		data, err = Open(ctx, cfg.Source)
		if err != nil {
			return nil, err
		}
	}
	Standardize(data)

	parts := ArraySplit(data, cfg.Clients)
	out := make([]Partition, len(parts))
	for i, p := range parts {
		out[i] = TrainTestSplit(p, cfg.TestFraction, cfg.Seed)
	}

	return out, nil
}

// Open reads heart-disease rows from a local path or an http(s) URL.
func Open(ctx context.Context, source string) (Split, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return Split{}, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return Split{}, fmt.Errorf("failed to download dataset: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return Split{}, fmt.Errorf("%w: %d", errUnexpectedStatus, resp.StatusCode)
		}

		return ReadHeart(resp.Body)
	}

	f, err := os.Open(source)
	if err != nil {
		return Split{}, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	return ReadHeart(f)
}

// ReadHeart parses 14-column rows. Rows with a missing value are dropped and
// any positive target is mapped to 1.
func ReadHeart(r io.Reader) (Split, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = heartColumns
	reader.TrimLeadingSpace = true

	var s Split
	line := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return Split{}, fmt.Errorf("%w: line %d: %w", pkgerrors.ErrInvalidData, line, err)
		}

		row, ok, err := parseRow(record)
		if err != nil {
			return Split{}, fmt.Errorf("%w: line %d: %w", pkgerrors.ErrInvalidData, line, err)
		}
		if !ok {
			continue
		}
		label := 0.0
		if row[heartColumns-1] > 0 {
			label = 1
		}
		s.X = append(s.X, row[:heartColumns-1])
		s.Y = append(s.Y, label)
	}

	return s, nil
}

func parseRow(record []string) ([]float64, bool, error) {
	row := make([]float64, len(record))
	for i, field := range record {
		field = strings.TrimSpace(field)
		if field == missingMarker || field == "" {
			return nil, false, nil
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, false, err
		}
		row[i] = v
	}

	return row, true, nil
}

// Standardize rescales every feature column to zero mean and unit variance in
// place. Constant columns are only centered.
func Standardize(s Split) {
	n := s.Features()
	if n == 0 {
		return
	}
	col := make([]float64, s.Len())
	for j := range n {
		for i, x := range s.X {
			col[i] = x[j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		for _, x := range s.X {
			x[j] = (x[j] - mean) / std
		}
	}
}

// ArraySplit divides s into n contiguous parts whose sizes differ by at most
// one, the first parts taking the extra rows.
func ArraySplit(s Split, n int) []Split {
	total := s.Len()
	base, extra := total/n, total%n
	parts := make([]Split, n)
	start := 0
	for i := range n {
		size := base
		if i < extra {
			size++
		}
		parts[i] = Split{
			X: s.X[start : start+size],
			Y: s.Y[start : start+size],
		}
		start += size
	}

	return parts
}

// TrainTestSplit shuffles s with seed and holds out ceil(len*testFraction) rows.
func TrainTestSplit(s Split, testFraction float64, seed uint64) Partition {
	n := s.Len()
	nTest := int(math.Ceil(float64(n) * testFraction))
	if nTest > n {
		nTest = n
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	perm := rng.Perm(n)

	pick := func(idx []int) Split {
		out := Split{X: make([][]float64, len(idx)), Y: make([]float64, len(idx))}
		for i, j := range idx {
			out.X[i] = append([]float64(nil), s.X[j]...)
			out.Y[i] = s.Y[j]
		}

		return out
	}

	return Partition{
		Test:  pick(perm[:nTest]),
		Train: pick(perm[nTest:]),
	}
}

// Synthetic generates a linearly separable-ish problem with label noise, so
// runs work without network access.
func Synthetic(rows, features int, seed uint64) Split {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	w := make([]float64, features)
	for i := range w {
		w[i] = rng.NormFloat64()
	}

	s := Split{X: make([][]float64, rows), Y: make([]float64, rows)}
	for i := range rows {
		x := make([]float64, features)
		for j := range x {
			x[j] = rng.NormFloat64()
		}
		score := floats.Dot(w, x) + 0.5*rng.NormFloat64()
		s.X[i] = x
		if score > 0 {
			s.Y[i] = 1
		}
	}

	return s
}
