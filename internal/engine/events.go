package engine

// Lifecycle events fired by the loops. Within one worker the per-iteration
// order is fixed: iteration_started, forward_completed,
// [backward_completed], iteration_completed; and per epoch: epoch_started,
// iterations, epoch_completed.
const (
	// Training events
	TrainStarted            = "train_started"
	TrainCompleted          = "train_completed"
	TrainEpochStarted       = "train_epoch_started"
	TrainEpochCompleted     = "train_epoch_completed"
	TrainIterationStarted   = "train_iteration_started"
	TrainForwardCompleted   = "train_forward_completed"
	TrainBackwardCompleted  = "train_backward_completed"
	TrainIterationCompleted = "train_iteration_completed"

	// Evaluation events
	EvalStarted            = "eval_started"
	EvalCompleted          = "eval_completed"
	EvalEpochStarted       = "eval_epoch_started"
	EvalEpochCompleted     = "eval_epoch_completed"
	EvalIterationStarted   = "eval_iteration_started"
	EvalIterationCompleted = "eval_iteration_completed"

	// Engine-level events
	Started   = "started"
	Completed = "completed"
)
