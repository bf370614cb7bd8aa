package consensus

import (
	"time"

	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"

	"hotbft/types"
)

const tickTockBufferSize = 10

// TimeoutTicker 同一时间只有一个超时在计时，新的超时会取消旧的
type TimeoutTicker struct {
	service.BaseService

	timer    *time.Timer
	tickChan chan timeoutInfo
	tockChan chan types.LocalTimeout
}

type timeoutInfo struct {
	Timeout  types.LocalTimeout
	Duration time.Duration
}

var _ TimeoutScheduler = (*TimeoutTicker)(nil)

func NewTimeoutTicker() *TimeoutTicker {
	tt := &TimeoutTicker{
		timer:    time.NewTimer(0),
		tickChan: make(chan timeoutInfo, tickTockBufferSize),
		tockChan: make(chan types.LocalTimeout, tickTockBufferSize),
	}
	tt.BaseService = *service.NewBaseService(nil, "TimeoutTicker", tt)
	tt.stopTimer()
	return tt
}

func (tt *TimeoutTicker) SetLogger(logger log.Logger) {
	tt.Logger = logger
}

func (tt *TimeoutTicker) OnStart() error {
	go tt.timeoutRoutine()
	return nil
}

func (tt *TimeoutTicker) OnStop() {
	tt.stopTimer()
}

// Chan 超时触发后从这里读出
func (tt *TimeoutTicker) Chan() <-chan types.LocalTimeout {
	return tt.tockChan
}

// ScheduleTimeout 在共识goroutine中调用，不能阻塞
func (tt *TimeoutTicker) ScheduleTimeout(timeout types.LocalTimeout, duration time.Duration) {
	ti := timeoutInfo{Timeout: timeout, Duration: duration}
	select {
	case tt.tickChan <- ti:
	default:
		go func() {
			select {
			case tt.tickChan <- ti:
			case <-tt.Quit():
			}
		}()
	}
}

func (tt *TimeoutTicker) stopTimer() {
	if !tt.timer.Stop() {
		select {
		case <-tt.timer.C:
		default:
		}
	}
}

func (tt *TimeoutTicker) timeoutRoutine() {
	var ti timeoutInfo
	for {
		select {
		case newti := <-tt.tickChan:
			// 旧的超时作废
			tt.stopTimer()
			ti = newti
			tt.timer.Reset(ti.Duration)
			tt.Logger.Debug("scheduled timeout", "dur", ti.Duration, "epoch", ti.Timeout.Epoch, "view", ti.Timeout.View)
		case <-tt.timer.C:
			tt.Logger.Debug("timed out", "epoch", ti.Timeout.Epoch, "view", ti.Timeout.View)
			// 消费者可能正忙
			go func(timeout types.LocalTimeout) {
				select {
				case tt.tockChan <- timeout:
				case <-tt.Quit():
				}
			}(ti.Timeout)
		case <-tt.Quit():
			return
		}
	}
}
