package consensus

import (
	"testing"
	"time"

	"chaindpos/types"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"
)

func getTestLogWithDebug() log.Logger {
	return log.NewFilter(log.TestingLogger(), log.AllowDebug())
}

func getTestLog() log.Logger {
	return log.TestingLogger()
}

// 测试slotClock启动后，在第一次Reset之前都不会收到任何事件
func TestSlotDefaultTimeout(t *testing.T) {
	defer leaktest.CheckTimeout(t, 10*time.Second)()

	sc := NewSlotClock(0)
	sc.SetLogger(getTestLogWithDebug())
	require.NoError(t, sc.Start())
	defer sc.Stop()

	select {
	case <-sc.Chan():
		t.Error("有额外的超时事件")
	case <-time.NewTimer(time.Second).C:
	}
}

// 测试多次Reset，clock能否正确更新slot值
func TestSlotNormalCase(t *testing.T) {
	defer leaktest.CheckTimeout(t, 10*time.Second)()

	initialSlot := int64(100)
	sc := NewSlotClock(initialSlot)
	sc.SetLogger(getTestLogWithDebug())
	require.NoError(t, sc.Start())
	defer sc.Stop()

	for i := 0; i < 5; i++ {
		after := 200 * time.Millisecond
		resetNow := time.Now()
		sc.ResetClock(after)

		select {
		case ti := <-sc.Chan():
			assert.Equal(t, initialSlot+1, ti.Slot, "超时事件中的slot错误")
		case <-time.NewTimer(2 * time.Second).C:
			t.Fatal("超时事件没有正确触发")
		}
		d := sc.GetLastUptTime().Sub(resetNow)

		assert.Equal(t, initialSlot+1, sc.GetSlot(), "slot更新错误")
		assert.GreaterOrEqual(t, int64(d), int64(after), "slotClock超时事件没有按照预设时间触发")
		assert.Equal(t, after, sc.GetLastDuration(), "duration更新错误")
		initialSlot++
	}
}

// 测试Reset的正确性 - 首先设置一个长的超时事件，然后用一个小的时间间隔来reset
func TestResetClock(t *testing.T) {
	defer leaktest.CheckTimeout(t, 10*time.Second)()

	sc := NewSlotClock(0)
	sc.SetLogger(getTestLog())
	require.NoError(t, sc.Start())
	defer sc.Stop()

	longDuration := 3 * time.Second
	shortDuration := 500 * time.Millisecond

	sc.ResetClock(longDuration)
	time.Sleep(300 * time.Millisecond)
	resetNow := time.Now()
	sc.ResetClock(shortDuration)

	select {
	case <-sc.Chan():
		d := sc.GetLastUptTime().Sub(resetNow)
		assert.GreaterOrEqual(t, int64(d), int64(shortDuration), "slotClock超时事件没有按照预设时间触发")
		assert.Equal(t, shortDuration, sc.GetLastDuration(), "duration更新错误")
	case <-time.NewTimer(longDuration).C:
		t.Error("超时事件一直没有触发")
	}

	// 被覆盖的长超时不会再触发
	select {
	case <-sc.Chan():
		t.Error("被覆盖的超时仍然触发了")
	case <-time.NewTimer(longDuration).C:
	}
}

// 超时事件携带设置时的命令信息，负数的超时立即触发
func TestScheduleTimeoutCarriesCommand(t *testing.T) {
	defer leaktest.CheckTimeout(t, 10*time.Second)()

	sc := NewSlotClock(0)
	sc.SetLogger(getTestLog())
	require.NoError(t, sc.Start())
	defer sc.Stop()

	sc.ScheduleTimeout(timeoutInfo{Duration: -time.Second, Behavior: types.BehaviorNextRound, RoundID: 42})
	select {
	case ti := <-sc.Chan():
		assert.Equal(t, types.BehaviorNextRound, ti.Behavior)
		assert.Equal(t, int64(42), ti.RoundID)
		assert.Equal(t, time.Duration(0), ti.Duration, "负数的超时应当按0处理")
	case <-time.NewTimer(time.Second).C:
		t.Error("超时事件没有触发")
	}
}
