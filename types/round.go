package types

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

const (
	// DefaultMiningInterval 只有一个矿工时无法从时间槽推算出块间隔
	DefaultMiningInterval = 4000
)

var (
	ErrMinerNotInRound = errors.New("miner not in round")
)

// Round 共识调度的基本单位
// Round被视为不可变的值，所有修改都在Copy()之后进行并返回新的Round
type Round struct {
	RoundNumber          int64 `json:"round_number"`
	TermNumber           int64 `json:"term_number"`
	RoundIDForValidation int64 `json:"round_id_for_validation"`

	// key为矿工公钥
	Miners map[string]*MinerInRound `json:"miners"`

	ExtraBlockProducerOfPreviousRound string `json:"extra_block_producer_of_previous_round"`

	// LIB快照，每一轮都会携带到下一轮
	ConfirmedIrreversibleBlockRoundNumber int64 `json:"confirmed_irreversible_block_round_number"`
	ConfirmedIrreversibleBlockHeight      int64 `json:"confirmed_irreversible_block_height"`

	BlockchainAge int64 `json:"blockchain_age"`

	// 矿工列表在这一轮刚刚发生过变化（换届、替换作恶节点、侧链同步主链矿工）
	IsMinerListJustChanged bool `json:"is_miner_list_just_changed"`
}

// MinerInRound 矿工在某一轮的时间槽记录
type MinerInRound struct {
	PublicKey          string    `json:"public_key"`
	Order              int       `json:"order"`
	ExpectedMiningTime time.Time `json:"expected_mining_time"`

	OutValue        tmbytes.HexBytes `json:"out_value"`
	InValue         tmbytes.HexBytes `json:"in_value"`
	PreviousInValue tmbytes.HexBytes `json:"previous_in_value"`
	Signature       tmbytes.HexBytes `json:"signature"`

	ProducedBlocks     int64       `json:"produced_blocks"`
	ProducedTinyBlocks int         `json:"produced_tiny_blocks"`
	MissedTimeSlots    int64       `json:"missed_time_slots"`
	ActualMiningTimes  []time.Time `json:"actual_mining_times"`

	// 发送给每个矿工的加密后的秘密分片
	EncryptedInValues map[string]tmbytes.HexBytes `json:"encrypted_in_values"`
	// 其他矿工解密后公开的分片，key为解密者
	DecryptedPreviousInValues map[string]tmbytes.HexBytes `json:"decrypted_previous_in_values"`

	ImpliedIrreversibleBlockHeight int64 `json:"implied_irreversible_block_height"`

	SupposedOrderOfNextRound int  `json:"supposed_order_of_next_round"`
	FinalOrderOfNextRound    int  `json:"final_order_of_next_round"`
	IsExtraBlockProducer     bool `json:"is_extra_block_producer"`
}

func NewRound(roundNumber, termNumber int64) *Round {
	return &Round{
		RoundNumber: roundNumber,
		TermNumber:  termNumber,
		Miners:      make(map[string]*MinerInRound),
	}
}

func NewMinerInRound(pubkey string, order int, expected time.Time) *MinerInRound {
	return &MinerInRound{
		PublicKey:                 pubkey,
		Order:                     order,
		ExpectedMiningTime:        expected,
		EncryptedInValues:         make(map[string]tmbytes.HexBytes),
		DecryptedPreviousInValues: make(map[string]tmbytes.HexBytes),
	}
}

// Copy 深拷贝
func (r *Round) Copy() *Round {
	if r == nil {
		return nil
	}
	nr := *r
	nr.Miners = make(map[string]*MinerInRound, len(r.Miners))
	for k, m := range r.Miners {
		nr.Miners[k] = m.Copy()
	}
	return &nr
}

func (m *MinerInRound) Copy() *MinerInRound {
	if m == nil {
		return nil
	}
	nm := *m
	nm.OutValue = copyBytes(m.OutValue)
	nm.InValue = copyBytes(m.InValue)
	nm.PreviousInValue = copyBytes(m.PreviousInValue)
	nm.Signature = copyBytes(m.Signature)
	if m.ActualMiningTimes != nil {
		nm.ActualMiningTimes = make([]time.Time, len(m.ActualMiningTimes))
		copy(nm.ActualMiningTimes, m.ActualMiningTimes)
	}
	nm.EncryptedInValues = copyPieces(m.EncryptedInValues)
	nm.DecryptedPreviousInValues = copyPieces(m.DecryptedPreviousInValues)
	return &nm
}

func (r *Round) IsEmpty() bool {
	return r == nil || len(r.Miners) == 0
}

func (r *Round) MinersCount() int {
	if r == nil {
		return 0
	}
	return len(r.Miners)
}

func (r *Round) Contains(pubkey string) bool {
	if r == nil {
		return false
	}
	_, ok := r.Miners[pubkey]
	return ok
}

func (r *Round) Miner(pubkey string) (*MinerInRound, error) {
	m, ok := r.Miners[pubkey]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMinerNotInRound, pubkey)
	}
	return m, nil
}

// MinersByOrder 按order升序返回矿工
func (r *Round) MinersByOrder() []*MinerInRound {
	miners := make([]*MinerInRound, 0, len(r.Miners))
	for _, m := range r.Miners {
		miners = append(miners, m)
	}
	sort.SliceStable(miners, func(i, j int) bool {
		if miners[i].Order == miners[j].Order {
			return miners[i].PublicKey < miners[j].PublicKey
		}
		return miners[i].Order < miners[j].Order
	})
	return miners
}

func (r *Round) MinerByOrder(order int) *MinerInRound {
	for _, m := range r.Miners {
		if m.Order == order {
			return m
		}
	}
	return nil
}

// PublicKeys 按order排序的公钥列表
func (r *Round) PublicKeys() []string {
	miners := r.MinersByOrder()
	keys := make([]string, len(miners))
	for i, m := range miners {
		keys[i] = m.PublicKey
	}
	return keys
}

// RoundID 所有矿工预期出块时间（秒）之和
func (r *Round) RoundID() int64 {
	if r.IsEmpty() {
		return r.RoundIDForValidation
	}
	var id int64
	for _, m := range r.Miners {
		if m.ExpectedMiningTime.IsZero() {
			return r.RoundIDForValidation
		}
		id += m.ExpectedMiningTime.Unix()
	}
	return id
}

// MiningInterval 由前两个时间槽推算出块间隔（毫秒）
func (r *Round) MiningInterval() int64 {
	if r.MinersCount() < 2 {
		return DefaultMiningInterval
	}
	first, second := r.MinerByOrder(1), r.MinerByOrder(2)
	if first == nil || second == nil {
		return DefaultMiningInterval
	}
	interval := second.ExpectedMiningTime.Sub(first.ExpectedMiningTime).Milliseconds()
	if interval < 0 {
		interval = -interval
	}
	return interval
}

// StartTime 第一个时间槽的预期出块时间
func (r *Round) StartTime() time.Time {
	first := r.MinerByOrder(1)
	if first == nil {
		return time.Time{}
	}
	return first.ExpectedMiningTime
}

// TotalMilliseconds 一轮的总时长：N个时间槽加上额外区块的时间槽
func (r *Round) TotalMilliseconds(interval int64) int64 {
	if interval <= 0 {
		interval = r.MiningInterval()
	}
	return int64(r.MinersCount())*interval + interval
}

// ExpectedEndTime 预计结束时间，missedRounds表示已经错过的轮数
func (r *Round) ExpectedEndTime(missedRounds, interval int64) time.Time {
	total := r.TotalMilliseconds(interval)
	return r.StartTime().Add(Milliseconds(total + missedRounds*total))
}

// ExtraBlockMiningTime 最后一个时间槽之后的额外区块时间
func (r *Round) ExtraBlockMiningTime() time.Time {
	miners := r.MinersByOrder()
	if len(miners) == 0 {
		return time.Time{}
	}
	return miners[len(miners)-1].ExpectedMiningTime.Add(Milliseconds(r.MiningInterval()))
}

// ExtraBlockProducer 本轮负责生成下一轮信息的矿工
func (r *Round) ExtraBlockProducer() *MinerInRound {
	for _, m := range r.MinersByOrder() {
		if m.IsExtraBlockProducer {
			return m
		}
	}
	return nil
}

// IsTimeSlotPassed 矿工自己的时间槽是否已经结束，时间槽为 [expected, expected+interval)
func (r *Round) IsTimeSlotPassed(pubkey string, now time.Time) bool {
	m, ok := r.Miners[pubkey]
	if !ok {
		return true
	}
	return !now.Before(m.ExpectedMiningTime.Add(Milliseconds(r.MiningInterval())))
}

// MinedMiners 本轮已经发布out value的矿工
func (r *Round) MinedMiners() []*MinerInRound {
	mined := []*MinerInRound{}
	for _, m := range r.MinersByOrder() {
		if m.IsMined() {
			mined = append(mined, m)
		}
	}
	return mined
}

func (r *Round) NotMinedMiners() []*MinerInRound {
	notMined := []*MinerInRound{}
	for _, m := range r.MinersByOrder() {
		if !m.IsMined() {
			notMined = append(notMined, m)
		}
	}
	return notMined
}

func (r *Round) MinedPublicKeys() []string {
	mined := r.MinedMiners()
	keys := make([]string, len(mined))
	for i, m := range mined {
		keys[i] = m.PublicKey
	}
	return keys
}

// MinersCountOfConsent 达成共识所需的最少矿工数 N*2/3+1
func (r *Round) MinersCountOfConsent() int {
	return r.MinersCount()*2/3 + 1
}

// MinedBlocks 本轮矿工累计出块数
func (r *Round) MinedBlocks() int64 {
	var total int64
	for _, m := range r.Miners {
		total += m.ProducedBlocks
	}
	return total
}

// CheckOrders order必须是1..N的一个排列
func (r *Round) CheckOrders() error {
	n := r.MinersCount()
	seen := make(map[int]bool, n)
	for _, m := range r.Miners {
		if m.Order < 1 || m.Order > n {
			return fmt.Errorf("order %d of %s out of range [1, %d]", m.Order, m.PublicKey, n)
		}
		if seen[m.Order] {
			return fmt.Errorf("duplicated order %d", m.Order)
		}
		seen[m.Order] = true
	}
	return nil
}

// CheckRoundTimeSlots 检查每个时间槽之间的间隔是否一致
func (r *Round) CheckRoundTimeSlots() ValidationResult {
	miners := r.MinersByOrder()
	if len(miners) <= 1 {
		return ValidationSuccess()
	}
	for _, m := range miners {
		if m.ExpectedMiningTime.IsZero() {
			return ValidationFailure("incorrect expected mining time")
		}
	}

	base := miners[1].ExpectedMiningTime.Sub(miners[0].ExpectedMiningTime).Milliseconds()
	if base <= 0 {
		return ValidationFailure("mining interval must greater than 0")
	}
	for i := 1; i < len(miners)-1; i++ {
		interval := miners[i+1].ExpectedMiningTime.Sub(miners[i].ExpectedMiningTime).Milliseconds()
		diff := interval - base
		if diff < 0 {
			diff = -diff
		}
		if diff > base {
			return ValidationFailure("time slots are so different")
		}
	}
	return ValidationSuccess()
}

func (r *Round) String() string {
	if r == nil {
		return "Round{nil}"
	}
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("Round{%d term:%d id:%d lib:%d@%d miners:[",
		r.RoundNumber, r.TermNumber, r.RoundID(),
		r.ConfirmedIrreversibleBlockHeight, r.ConfirmedIrreversibleBlockRoundNumber))
	for i, m := range r.MinersByOrder() {
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(fmt.Sprintf("%d:%s", m.Order, ShortKey(m.PublicKey)))
		if m.IsMined() {
			sb.WriteString("*")
		}
	}
	sb.WriteString("]}")
	return sb.String()
}

// IsMined 是否已经在本轮发布out value
func (m *MinerInRound) IsMined() bool {
	return !IsEmptyHash(m.OutValue)
}

// LatestActualMiningTime 最近一次实际出块时间
func (m *MinerInRound) LatestActualMiningTime() (time.Time, bool) {
	if len(m.ActualMiningTimes) == 0 {
		return time.Time{}, false
	}
	latest := m.ActualMiningTimes[0]
	for _, t := range m.ActualMiningTimes[1:] {
		if t.After(latest) {
			latest = t
		}
	}
	return latest, true
}

// CountActualMiningTimesBefore 在t之前出块的数量
func (m *MinerInRound) CountActualMiningTimesBefore(t time.Time) int {
	count := 0
	for _, at := range m.ActualMiningTimes {
		if at.Before(t) {
			count++
		}
	}
	return count
}

// Milliseconds 毫秒转成time.Duration
func Milliseconds(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// ShortKey 日志里只打印公钥前8位
func ShortKey(pubkey string) string {
	if len(pubkey) <= 8 {
		return pubkey
	}
	return pubkey[:8]
}

func copyBytes(bz tmbytes.HexBytes) tmbytes.HexBytes {
	if bz == nil {
		return nil
	}
	nb := make([]byte, len(bz))
	copy(nb, bz)
	return nb
}

func copyPieces(pieces map[string]tmbytes.HexBytes) map[string]tmbytes.HexBytes {
	np := make(map[string]tmbytes.HexBytes, len(pieces))
	for k, v := range pieces {
		np[k] = copyBytes(v)
	}
	return np
}
