package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gather(reg prometheus.Gatherer, name string, labels map[string]string) (*dto.Metric, error) {
	families, err := reg.Gather()
	if err != nil {
		return nil, err
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if hasLabels(metric, labels) {
				return metric, nil
			}
		}
	}
	return nil, fmt.Errorf("no %s series with labels %v", name, labels)
}

func hasLabels(metric *dto.Metric, want map[string]string) bool {
	got := make(map[string]string, len(metric.GetLabel()))
	for _, pair := range metric.GetLabel() {
		got[pair.GetName()] = pair.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func counterValue(reg prometheus.Gatherer, name string, labels map[string]string) (float64, error) {
	metric, err := gather(reg, name, labels)
	if err != nil {
		return 0, err
	}
	return metric.GetCounter().GetValue(), nil
}

func histogramSum(reg prometheus.Gatherer, name string, labels map[string]string) (float64, error) {
	metric, err := gather(reg, name, labels)
	if err != nil {
		return 0, err
	}
	return metric.GetHistogram().GetSampleSum(), nil
}
