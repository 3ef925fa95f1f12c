package rpc

import (
	"chaindpos/consensus"
	"chaindpos/libs/metric"
	"chaindpos/state"

	jsoniter "github.com/json-iterator/go"
)

var (
	env  *Environment
	json = jsoniter.ConfigCompatibleWithStandardLibrary
)

func SetEnvironment(e *Environment) {
	env = e
}

// Environment rpc查询时用到的模块，由node在启动rpc之前设置
type Environment struct {
	Engine    *consensus.Engine
	BlockExec state.BlockExecutor
	Store     state.Store
	Miners    []*consensus.Miner

	MetricSet *metric.MetricSet
}
