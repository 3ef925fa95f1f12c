package rpc

import (
	"fmt"

	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"
)

type ResultMetrics struct {
	Metrics map[string]string `json:"metrics"`
}

// JSONMetrics label为空时返回所有模块的metric
func JSONMetrics(ctx *rpctypes.Context, label string) (*ResultMetrics, error) {
	result := &ResultMetrics{Metrics: make(map[string]string)}

	var labels []string
	if label != "" {
		if !env.MetricSet.HasMetrics(label) {
			return nil, fmt.Errorf("unknown metric label %q", label)
		}
		labels = []string{label}
	} else {
		labels = env.MetricSet.GetAlllabels()
	}

	for _, l := range labels {
		item := env.MetricSet.GetMetrics(l)
		if item != nil {
			result.Metrics[l] = item.JSONString()
		}
	}
	return result, nil
}

// MetricsSummary 把所有metric合并成一个json对象，用于日志
func MetricsSummary() string {
	merged := make(map[string]interface{})
	for _, l := range env.MetricSet.GetAlllabels() {
		var v interface{}
		if err := json.UnmarshalFromString(env.MetricSet.GetMetrics(l).JSONString(), &v); err != nil {
			v = err.Error()
		}
		merged[l] = v
	}
	s, err := json.MarshalToString(merged)
	if err != nil {
		return "{}"
	}
	return s
}
