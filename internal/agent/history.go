package agent

import "sync"

// StepHistory is the append-only record of a run. Its verdicts are pure
// functions of the recorded steps, so asking twice gives the same answer.
type StepHistory struct {
	mu       sync.Mutex
	steps    []Step
	onAppend func(Step)
}

func NewStepHistory(onAppend func(Step)) *StepHistory {
	return &StepHistory{onAppend: onAppend}
}

// Append records a step. Result data always carries title and url keys.
func (h *StepHistory) Append(s Step) {
	if s.Result.Data == nil {
		s.Result.Data = make(map[string]any)
	}
	for _, key := range []string{"title", "url"} {
		if _, ok := s.Result.Data[key]; !ok {
			s.Result.Data[key] = ""
		}
	}
	s.Result.Success = s.Success
	if s.Success {
		s.Result.Error = nil
	}

	h.mu.Lock()
	h.steps = append(h.steps, s)
	h.mu.Unlock()

	if h.onAppend != nil {
		h.onAppend(s)
	}
}

func (h *StepHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.steps)
}

// Steps returns a copy of the recorded steps.
func (h *StepHistory) Steps() []Step {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Step, len(h.steps))
	copy(out, h.steps)
	return out
}

func (h *StepHistory) Last() (Step, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.steps) == 0 {
		return Step{}, false
	}
	return h.steps[len(h.steps)-1], true
}

// OverallSuccess is true when some step satisfied the task and the run did
// not end on a challenge pause.
func (h *StepHistory) OverallSuccess() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n := len(h.steps); n == 0 || h.steps[n-1].IsChallenge() {
		return false
	}
	for _, s := range h.steps {
		if s.Success && s.Satisfies {
			return true
		}
	}
	return false
}

func (h *StepHistory) Status() OverallStatus {
	if last, ok := h.Last(); ok && last.IsChallenge() {
		return StatusAwaitingUser
	}
	if h.OverallSuccess() {
		return StatusSucceeded
	}
	return StatusFailed
}

func okStep(description, message string, data map[string]any) Step {
	return Step{
		Description: description,
		Success:     true,
		Result:      StepResult{Success: true, Message: message, Data: data},
	}
}

func failedStep(description, message string, kind ErrorKind, data map[string]any) Step {
	k := kind
	return Step{
		Description: description,
		Success:     false,
		Result:      StepResult{Success: false, Message: message, Data: data, Error: &k},
	}
}
