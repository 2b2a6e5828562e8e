package fl

import (
	"fmt"
	"math"

	pkgerrors "github.com/absmach/fedlearn/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

type WeightedParams struct {
	Params ParameterSet
	Weight float64
}

type WeightedMetrics struct {
	Metrics Metrics
	Weight  float64
}

// MetricsAggregate splits aggregated metrics by coverage. Complete holds keys every
// report carried, Partial holds keys only some reports carried.
type MetricsAggregate struct {
	Complete Metrics `json:"complete"`
	Partial  Metrics `json:"partial,omitempty"`
}

type Aggregator interface {
	// AggregateParams returns the weighted mean of the given parameter sets.
	AggregateParams(reports []WeightedParams) (ParameterSet, error)

	// AggregateMetrics returns the weighted mean of each metric key.
	AggregateMetrics(reports []WeightedMetrics) (MetricsAggregate, error)
}

type FedAvgAggregator struct{}

func NewFedAvgAggregator() Aggregator {
	return &FedAvgAggregator{}
}

func (f *FedAvgAggregator) AggregateParams(reports []WeightedParams) (ParameterSet, error) {
	if len(reports) == 0 {
		return nil, pkgerrors.ErrEmptyAggregation
	}

	var ref ParameterSet
	for i, r := range reports {
		if err := r.Params.Validate(); err != nil {
			return nil, fmt.Errorf("report %d: %w", i, err)
		}
		if ref == nil {
			ref = r.Params

			continue
		}
		if err := ref.CheckShape(r.Params); err != nil {
			return nil, fmt.Errorf("report %d: %w", i, err)
		}
	}

	result := ZerosLike(ref)
	var total float64
	for _, r := range reports {
		if !usableWeight(r.Weight) {
			continue
		}
		total += r.Weight
		for i, t := range r.Params {
			floats.AddScaled(result[i].Data, r.Weight, t.Data)
		}
	}
	if total == 0 {
		return nil, pkgerrors.ErrEmptyAggregation
	}

	for i := range result {
		floats.Scale(1/total, result[i].Data)
	}

	return result, nil
}

func (f *FedAvgAggregator) AggregateMetrics(reports []WeightedMetrics) (MetricsAggregate, error) {
	var used []WeightedMetrics
	for _, r := range reports {
		if usableWeight(r.Weight) {
			used = append(used, r)
		}
	}
	if len(used) == 0 {
		return MetricsAggregate{}, pkgerrors.ErrEmptyAggregation
	}

	sums := map[string]float64{}
	weights := map[string]float64{}
	counts := map[string]int{}
	for _, r := range used {
		for k, v := range r.Metrics {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			sums[k] += r.Weight * v
			weights[k] += r.Weight
			counts[k]++
		}
	}

	agg := MetricsAggregate{Complete: Metrics{}}
	for k, sum := range sums {
		mean := sum / weights[k]
		if counts[k] == len(used) {
			agg.Complete[k] = mean

			continue
		}
		if agg.Partial == nil {
			agg.Partial = Metrics{}
		}
		agg.Partial[k] = mean
	}

	return agg, nil
}

// WeightedLoss averages evaluation losses by sample count.
func WeightedLoss(reports []ClientReport) (float64, error) {
	var sum, total float64
	for _, r := range reports {
		w := r.Weight()
		if !usableWeight(w) || math.IsNaN(r.Loss) || math.IsInf(r.Loss, 0) {
			continue
		}
		sum += w * r.Loss
		total += w
	}
	if total == 0 {
		return 0, pkgerrors.ErrEmptyAggregation
	}

	return sum / total, nil
}

func usableWeight(w float64) bool {
	return w > 0 && !math.IsInf(w, 0) && !math.IsNaN(w)
}
