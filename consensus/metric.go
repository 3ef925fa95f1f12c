package consensus

import (
	"sync"
	"time"

	"chaindpos/types"

	jsoniter "github.com/json-iterator/go"
	metrics "github.com/rcrowley/go-metrics"
)

func newConsensusMetric() *consensusMetric {
	r := metrics.NewRegistry()
	return &consensusMetric{
		registry:      r,
		blocks:        metrics.NewRegisteredCounter("blocks", r),
		tinyBlocks:    metrics.NewRegisteredCounter("tiny_blocks", r),
		rounds:        metrics.NewRegisteredCounter("rounds", r),
		terms:         metrics.NewRegisteredCounter("terms", r),
		replaced:      metrics.NewRegisteredCounter("replaced_miners", r),
		rejected:      metrics.NewRegisteredCounter("rejected_headers", r),
		libHeight:     metrics.NewRegisteredGauge("lib_height", r),
		libDistance:   metrics.NewRegisteredGauge("lib_distance", r),
		miningLatency: metrics.NewRegisteredTimer("mining_latency", r),
	}
}

// consensusMetric 共识的运行指标
// 计数类指标放在go-metrics的registry里，状态类指标直接记录
type consensusMetric struct {
	mtx sync.RWMutex

	registry      metrics.Registry
	blocks        metrics.Counter
	tinyBlocks    metrics.Counter
	rounds        metrics.Counter
	terms         metrics.Counter
	replaced      metrics.Counter
	rejected      metrics.Counter
	libHeight     metrics.Gauge
	libDistance   metrics.Gauge
	miningLatency metrics.Timer

	RoundNumber    int64        `json:"current_round_number"`
	TermNumber     int64        `json:"current_term_number"`
	RoundStartTime time.Time    `json:"round_start_time"`
	LastMethod     string       `json:"last_method"`
	LastProducer   string       `json:"last_producer"`
	MiningStatus   MiningStatus `json:"mining_status"`
}

type consensusMetricSnapshot struct {
	RoundNumber    int64        `json:"current_round_number"`
	TermNumber     int64        `json:"current_term_number"`
	RoundStartTime time.Time    `json:"round_start_time"`
	LastMethod     string       `json:"last_method"`
	LastProducer   string       `json:"last_producer"`
	MiningStatus   MiningStatus `json:"mining_status"`

	Blocks          int64   `json:"blocks"`
	TinyBlocks      int64   `json:"tiny_blocks"`
	Rounds          int64   `json:"rounds"`
	Terms           int64   `json:"terms"`
	ReplacedMiners  int64   `json:"replaced_miners"`
	RejectedHeaders int64   `json:"rejected_headers"`
	LibHeight       int64   `json:"lib_height"`
	LibDistance     int64   `json:"lib_distance"`
	MiningLatencyMs float64 `json:"mining_latency_ms"`
}

func (cm *consensusMetric) JSONString() string {
	cm.mtx.RLock()
	snapshot := consensusMetricSnapshot{
		RoundNumber:     cm.RoundNumber,
		TermNumber:      cm.TermNumber,
		RoundStartTime:  cm.RoundStartTime,
		LastMethod:      cm.LastMethod,
		LastProducer:    cm.LastProducer,
		MiningStatus:    cm.MiningStatus,
		Blocks:          cm.blocks.Count(),
		TinyBlocks:      cm.tinyBlocks.Count(),
		Rounds:          cm.rounds.Count(),
		Terms:           cm.terms.Count(),
		ReplacedMiners:  cm.replaced.Count(),
		RejectedHeaders: cm.rejected.Count(),
		LibHeight:       cm.libHeight.Value(),
		LibDistance:     cm.libDistance.Value(),
		MiningLatencyMs: cm.miningLatency.Mean() / float64(time.Millisecond),
	}
	cm.mtx.RUnlock()

	s, _ := jsoniter.MarshalToString(snapshot)
	return s
}

// MarkRound 进入新的轮次
func (cm *consensusMetric) MarkRound(round *types.Round, newTerm bool) {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.RoundNumber = round.RoundNumber
	cm.TermNumber = round.TermNumber
	cm.RoundStartTime = round.StartTime()
	cm.rounds.Inc(1)
	if newTerm {
		cm.terms.Inc(1)
	}
}

// MarkBlock 记录一条执行成功的共识交易
func (cm *consensusMetric) MarkBlock(method, producer string) {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.LastMethod = method
	cm.LastProducer = types.ShortKey(producer)
	cm.blocks.Inc(1)
	if method == types.MethodUpdateTinyBlockInformation {
		cm.tinyBlocks.Inc(1)
	}
}

func (cm *consensusMetric) MarkHealth(health MiningStatus, libHeight, distance int64) {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.MiningStatus = health
	cm.libHeight.Update(libHeight)
	cm.libDistance.Update(distance)
}

func (cm *consensusMetric) MarkReplaced(count int) {
	cm.replaced.Inc(int64(count))
}

func (cm *consensusMetric) MarkRejected() {
	cm.rejected.Inc(1)
}

// MarkMiningLatency 实际出块时间和预期时间的差
func (cm *consensusMetric) MarkMiningLatency(d time.Duration) {
	if d < 0 {
		d = -d
	}
	cm.miningLatency.Update(d)
}
