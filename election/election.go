package election

import (
	"sort"
	"sync"

	"chaindpos/types"

	"github.com/tendermint/tendermint/libs/log"
)

// Candidate 候选矿工以及得票数
type Candidate struct {
	Pubkey string `json:"pubkey"`
	Votes  int64  `json:"votes"`
}

// ProductionStats 被上报的出块统计
type ProductionStats struct {
	ProducedBlocks  int64 `json:"produced_blocks"`
	MissedTimeSlots int64 `json:"missed_time_slots"`
}

// StaticElection 内存中的选举结果
// 当选矿工数量固定，被拉黑的矿工由得票最高的候选人补上
type StaticElection struct {
	mtx sync.RWMutex

	minersCount int
	victors     []string
	candidates  map[string]int64
	banned      map[string]bool
	stats       map[string]*ProductionStats

	logger log.Logger
}

func NewStaticElection(victors []string) *StaticElection {
	e := &StaticElection{
		candidates: make(map[string]int64),
		banned:     make(map[string]bool),
		stats:      make(map[string]*ProductionStats),
		logger:     log.NewNopLogger(),
	}
	e.SetVictors(victors)
	return e
}

func (e *StaticElection) SetLogger(logger log.Logger) {
	e.logger = logger
}

// SetVictors 设置新一届的当选矿工
func (e *StaticElection) SetVictors(victors []string) {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	e.victors = append([]string{}, victors...)
	e.minersCount = len(victors)
}

// AnnounceCandidate 登记候选人，重复登记会更新得票数
func (e *StaticElection) AnnounceCandidate(pubkey string, votes int64) {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	e.candidates[pubkey] = votes
}

// GetCurrentVictors 当选矿工去掉被拉黑的，再按得票补足
func (e *StaticElection) GetCurrentVictors() types.MinerList {
	e.mtx.RLock()
	defer e.mtx.RUnlock()

	selected := make([]string, 0, e.minersCount)
	used := map[string]bool{}
	for _, pk := range e.victors {
		if !e.banned[pk] {
			selected = append(selected, pk)
			used[pk] = true
		}
	}
	for _, c := range e.snapshot() {
		if len(selected) >= e.minersCount {
			break
		}
		if !used[c.Pubkey] {
			selected = append(selected, c.Pubkey)
			used[c.Pubkey] = true
		}
	}
	return types.NewMinerList(selected)
}

// GetVoteSnapshot 按得票从高到低排列的未被拉黑的候选人
func (e *StaticElection) GetVoteSnapshot() []Candidate {
	e.mtx.RLock()
	defer e.mtx.RUnlock()
	return e.snapshot()
}

func (e *StaticElection) snapshot() []Candidate {
	candidates := make([]Candidate, 0, len(e.candidates))
	for pk, votes := range e.candidates {
		if e.banned[pk] {
			continue
		}
		candidates = append(candidates, Candidate{Pubkey: pk, Votes: votes})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Votes == candidates[j].Votes {
			return candidates[i].Pubkey < candidates[j].Pubkey
		}
		return candidates[i].Votes > candidates[j].Votes
	})
	return candidates
}

func (e *StaticElection) IsBanned(pubkey string) bool {
	e.mtx.RLock()
	defer e.mtx.RUnlock()
	return e.banned[pubkey]
}

// ReportEvil 拉黑作恶的矿工
func (e *StaticElection) ReportEvil(pubkey string) {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if !e.banned[pubkey] {
		e.logger.Info("ban evil miner", "pubkey", types.ShortKey(pubkey))
	}
	e.banned[pubkey] = true
}

// ReportProductionStats 累加矿工的出块统计
func (e *StaticElection) ReportProductionStats(pubkey string, produced, missed int64) {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	stats, ok := e.stats[pubkey]
	if !ok {
		stats = &ProductionStats{}
		e.stats[pubkey] = stats
	}
	stats.ProducedBlocks += produced
	stats.MissedTimeSlots += missed
}

func (e *StaticElection) ProductionStats(pubkey string) ProductionStats {
	e.mtx.RLock()
	defer e.mtx.RUnlock()
	if stats, ok := e.stats[pubkey]; ok {
		return *stats
	}
	return ProductionStats{}
}
