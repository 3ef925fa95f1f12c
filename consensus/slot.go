package consensus

import (
	"fmt"
	"sync"
	"time"

	"chaindpos/types"

	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
)

// 节点启动后clock默认超时时间，第一次ResetClock之前不会触发
const initialSlotTimeout = 100 * time.Hour

// timeoutInfo 出块定时器触发时携带的命令
type timeoutInfo struct {
	Duration time.Duration  `json:"duration"`
	Slot     int64          `json:"slot"`
	Behavior types.Behavior `json:"behavior"`
	RoundID  int64          `json:"round_id"`
}

func (ti *timeoutInfo) String() string {
	return fmt.Sprintf("%v ; %d/%v@%d", ti.Duration, ti.Slot, ti.Behavior, ti.RoundID)
}

// SlotClock 矿工的出块定时器
// 每次只有一个待触发的超时，新的超时覆盖旧的；每触发一次slot加一
type SlotClock struct {
	service.BaseService

	mtx          sync.RWMutex
	slot         int64
	lastUptTime  time.Time
	lastDuration time.Duration

	timer    *time.Timer
	tickChan chan timeoutInfo // 新的超时设置
	tockChan chan timeoutInfo // 超时触发
}

func NewSlotClock(initSlot int64) *SlotClock {
	sc := &SlotClock{
		slot:     initSlot,
		timer:    time.NewTimer(initialSlotTimeout),
		tickChan: make(chan timeoutInfo, 16),
		tockChan: make(chan timeoutInfo, 16),
	}
	sc.stopTimer()
	sc.BaseService = *service.NewBaseService(nil, "SlotClock", sc)
	return sc
}

func (sc *SlotClock) SetLogger(logger log.Logger) {
	sc.Logger = logger
}

func (sc *SlotClock) OnStart() error {
	go sc.timeoutRoutine()
	return nil
}

func (sc *SlotClock) OnStop() {
	sc.stopTimer()
}

// Chan 超时事件
func (sc *SlotClock) Chan() <-chan timeoutInfo {
	return sc.tockChan
}

// ResetClock 重置超时定时器
func (sc *SlotClock) ResetClock(d time.Duration) {
	sc.ScheduleTimeout(timeoutInfo{Duration: d})
}

// ScheduleTimeout 用一个新的超时覆盖当前的超时
func (sc *SlotClock) ScheduleTimeout(ti timeoutInfo) {
	sc.tickChan <- ti
}

func (sc *SlotClock) GetSlot() int64 {
	sc.mtx.RLock()
	defer sc.mtx.RUnlock()
	return sc.slot
}

// GetLastUptTime 最近一次超时触发的时间
func (sc *SlotClock) GetLastUptTime() time.Time {
	sc.mtx.RLock()
	defer sc.mtx.RUnlock()
	return sc.lastUptTime
}

// GetLastDuration 最近一次触发的超时设定
func (sc *SlotClock) GetLastDuration() time.Duration {
	sc.mtx.RLock()
	defer sc.mtx.RUnlock()
	return sc.lastDuration
}

func (sc *SlotClock) stopTimer() {
	if !sc.timer.Stop() {
		select {
		case <-sc.timer.C:
		default:
		}
	}
}

func (sc *SlotClock) timeoutRoutine() {
	sc.Logger.Debug("slot clock starts")
	var ti timeoutInfo
	for {
		select {
		case newti := <-sc.tickChan:
			sc.stopTimer()
			ti = newti
			if ti.Duration < 0 {
				ti.Duration = 0
			}
			sc.timer.Reset(ti.Duration)
			sc.Logger.Debug("slot clock reset", "timeout", ti.Duration, "behavior", ti.Behavior)
		case <-sc.timer.C:
			sc.mtx.Lock()
			sc.slot++
			sc.lastUptTime = time.Now()
			sc.lastDuration = ti.Duration
			ti.Slot = sc.slot
			sc.mtx.Unlock()
			sc.Logger.Debug("slot clock timed out", "timeout", ti.String())

			// 定时器可能在接收方阻塞时触发
			go func(toi timeoutInfo) {
				select {
				case sc.tockChan <- toi:
				case <-sc.Quit():
				}
			}(ti)
		case <-sc.Quit():
			return
		}
	}
}
