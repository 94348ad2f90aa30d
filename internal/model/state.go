package model

import "time"

// validTransitions enumerates the permitted lifecycle edges: pending ->
// processing -> {completed|failed|retrying|cancelled}; retrying ->
// {processing|failed|cancelled}. A task only reaches failed once its retry budget is
// exhausted (see Retry/Fail below); failed->pending is the one
// operator-driven exception, used to requeue a retry-exhausted task for
// another attempt.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusRetrying, StatusCancelled},
	StatusRetrying:   {StatusProcessing, StatusFailed, StatusCancelled},
	StatusFailed:     {StatusPending},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

// IsFinal reports whether the status is terminal: no transition leads out
// of it except failed's operator-driven requeue back to pending.
func (s Status) IsFinal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanTransitionTo reports whether s -> target is a permitted edge.
func (s Status) CanTransitionTo(target Status) bool {
	for _, v := range validTransitions[s] {
		if v == target {
			return true
		}
	}
	return false
}

// StateMachine performs lifecycle transitions against a single Task,
// stamping started_at on entry to processing and completed_at on entry to
// a terminal state, each exactly once. Re-running a transition the task is
// already in must not re-stamp a timestamp; callers achieve this by only
// calling a transition method once per observed broker event (see
// worker.Wrapper).
type StateMachine struct {
	task *Task
}

func NewStateMachine(t *Task) *StateMachine {
	return &StateMachine{task: t}
}

func (sm *StateMachine) transition(target Status, now time.Time) error {
	if !sm.task.Status.CanTransitionTo(target) {
		return ErrInvalidTransition
	}
	sm.task.Status = target
	sm.task.UpdatedAt = now
	switch target {
	case StatusProcessing:
		if sm.task.StartedAt == nil {
			sm.task.StartedAt = &now
		}
	case StatusCompleted, StatusFailed, StatusCancelled:
		if sm.task.CompletedAt == nil {
			sm.task.CompletedAt = &now
		}
	}
	return nil
}

// Start performs the Prerun transition: pending->processing.
func (sm *StateMachine) Start(workerID string, now time.Time) error {
	if err := sm.transition(StatusProcessing, now); err != nil {
		return err
	}
	sm.task.WorkerID = workerID
	return nil
}

// Complete performs the Success transition: processing->completed.
func (sm *StateMachine) Complete(result []byte, now time.Time) error {
	if err := sm.transition(StatusCompleted, now); err != nil {
		return err
	}
	sm.task.Result = result
	return nil
}

// Retry performs the Retryable failure transition: processing->retrying.
// Caller must have already verified CanRetry() — this never exhausts the
// retry budget itself; once the budget is gone the caller calls Fail
// instead.
func (sm *StateMachine) Retry(errMsg, traceback string, now time.Time) error {
	if err := sm.transition(StatusRetrying, now); err != nil {
		return err
	}
	sm.task.RetryCount++
	sm.task.LastErrorAt = &now
	sm.task.ErrorMessage = errMsg
	sm.task.ErrorTraceback = traceback
	return nil
}

// Fail performs the Terminal failure transition: processing/retrying->failed. This
// is how a task reaches failed once its retry budget is exhausted, and is
// also the closed terminal state a single-shot unretryable failure lands
// in.
func (sm *StateMachine) Fail(errMsg, traceback string, now time.Time) error {
	if err := sm.transition(StatusFailed, now); err != nil {
		return err
	}
	sm.task.ErrorMessage = errMsg
	sm.task.ErrorTraceback = traceback
	return nil
}

// Cancel performs the External cancel transition: any non-terminal->cancelled.
func (sm *StateMachine) Cancel(now time.Time) error {
	return sm.transition(StatusCancelled, now)
}

// Requeue transitions a retry-exhausted failed task back to pending for
// reprocessing, resetting the fields an operator-initiated retry must
// clear.
func (sm *StateMachine) Requeue(now time.Time) error {
	if err := sm.transition(StatusPending, now); err != nil {
		return err
	}
	sm.task.WorkerID = ""
	sm.task.RetryCount = 0
	sm.task.ErrorMessage = ""
	sm.task.ErrorTraceback = ""
	sm.task.StartedAt = nil
	sm.task.CompletedAt = nil
	return nil
}
