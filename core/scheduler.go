package core

// Timer represents a scheduled event
type Timer struct {
	WakeTime uint32
	Handler  func(*Timer) uint8
	Next     *Timer

	scheduled bool
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

// Scheduler keeps timers sorted by wake time
type Scheduler struct {
	timerList *Timer
}

var defaultScheduler Scheduler

// NewScheduler creates an empty scheduler
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Schedule adds a timer, replacing any pending instance of the same timer
func (s *Scheduler) Schedule(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if t.scheduled {
		s.remove(t)
	}
	s.insert(t)
}

// Cancel removes a pending timer. Cancelling an idle timer is a no-op.
func (s *Scheduler) Cancel(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if t.scheduled {
		s.remove(t)
	}
}

// Pending reports whether any timer is scheduled
func (s *Scheduler) Pending() bool {
	return s.timerList != nil
}

// NextWake returns the wake time of the earliest timer
func (s *Scheduler) NextWake() (uint32, bool) {
	if s.timerList == nil {
		return 0, false
	}
	return s.timerList.WakeTime, true
}

// insert inserts a timer in sorted order by WakeTime
func (s *Scheduler) insert(t *Timer) {
	t.scheduled = true
	if s.timerList == nil || IsBefore(t.WakeTime, s.timerList.WakeTime) {
		t.Next = s.timerList
		s.timerList = t
		return
	}

	current := s.timerList
	for current.Next != nil && !IsBefore(t.WakeTime, current.Next.WakeTime) {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

func (s *Scheduler) remove(t *Timer) {
	if s.timerList == t {
		s.timerList = t.Next
	} else {
		for current := s.timerList; current != nil; current = current.Next {
			if current.Next == t {
				current.Next = t.Next
				break
			}
		}
	}
	t.Next = nil
	t.scheduled = false
}

// Dispatch runs every timer with WakeTime <= now
func (s *Scheduler) Dispatch(now uint32) int {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	fired := 0
	for s.timerList != nil && !IsBefore(now, s.timerList.WakeTime) {
		timer := s.timerList
		s.timerList = timer.Next
		timer.Next = nil // Clear Next pointer to avoid circular references
		timer.scheduled = false

		fired++
		if timer.Handler(timer) == SF_RESCHEDULE && !timer.scheduled {
			s.insert(timer)
		}
	}
	return fired
}

// ScheduleTimer adds a timer to the default scheduler
func ScheduleTimer(t *Timer) {
	defaultScheduler.Schedule(t)
}

// CancelTimer removes a timer from the default scheduler
func CancelTimer(t *Timer) {
	defaultScheduler.Cancel(t)
}

// ProcessTimers runs due timers of the default scheduler
func ProcessTimers() {
	defaultScheduler.Dispatch(GetTime())
}
