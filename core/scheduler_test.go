package core

import "testing"

func TestSchedulerOrder(t *testing.T) {
	s := NewScheduler()

	var order []int
	mk := func(id int, wake uint32) *Timer {
		return &Timer{WakeTime: wake, Handler: func(*Timer) uint8 {
			order = append(order, id)
			return SF_DONE
		}}
	}

	s.Schedule(mk(3, 300))
	s.Schedule(mk(1, 100))
	s.Schedule(mk(2, 200))

	if fired := s.Dispatch(150); fired != 1 {
		t.Errorf("Expected 1 timer fired at 150, got %d", fired)
	}
	s.Dispatch(1000)

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("Expected order [1 2 3], got %v", order)
	}
	if s.Pending() {
		t.Error("Expected no pending timers")
	}
}

func TestSchedulerReschedule(t *testing.T) {
	s := NewScheduler()

	count := 0
	timer := &Timer{WakeTime: 10}
	timer.Handler = func(tm *Timer) uint8 {
		count++
		if count < 3 {
			tm.WakeTime += 10
			return SF_RESCHEDULE
		}
		return SF_DONE
	}
	s.Schedule(timer)

	for now := uint32(0); now <= 50; now += 10 {
		s.Dispatch(now)
	}

	if count != 3 {
		t.Errorf("Expected handler to run 3 times, ran %d", count)
	}
}

func TestSchedulerRearmAndCancel(t *testing.T) {
	s := NewScheduler()

	fired := false
	timer := &Timer{WakeTime: 10, Handler: func(*Timer) uint8 {
		fired = true
		return SF_DONE
	}}

	s.Schedule(timer)
	timer.WakeTime = 100
	s.Schedule(timer) // re-arm moves the pending timer

	s.Dispatch(50)
	if fired {
		t.Error("Re-armed timer fired at its old wake time")
	}

	wake, ok := s.NextWake()
	if !ok || wake != 100 {
		t.Errorf("Expected next wake 100, got %d (%v)", wake, ok)
	}

	s.Cancel(timer)
	s.Dispatch(200)
	if fired {
		t.Error("Cancelled timer fired")
	}

	s.Cancel(timer) // cancelling twice is harmless
}

func TestSchedulerWrap(t *testing.T) {
	s := NewScheduler()

	fired := false
	s.Schedule(&Timer{WakeTime: 5, Handler: func(*Timer) uint8 {
		fired = true
		return SF_DONE
	}})

	// 0xFFFFFFF0 is before 5 once the counter wraps
	s.Dispatch(0xFFFFFFF0)
	if fired {
		t.Error("Timer fired before the counter wrapped")
	}
	s.Dispatch(6)
	if !fired {
		t.Error("Timer did not fire after the counter wrapped")
	}
}

func TestTimerConversion(t *testing.T) {
	if TimerFromUS(45000) != 45000 {
		t.Errorf("Expected 45000 ticks, got %d", TimerFromUS(45000))
	}
	if TimerToUS(TimerFromUS(1234)) != 1234 {
		t.Error("Tick conversion is not reversible")
	}
	if !IsBefore(0xFFFFFFFF, 0) {
		t.Error("Expected 0xFFFFFFFF to be before 0 across the wrap")
	}
}
