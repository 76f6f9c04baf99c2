package task

import "context"

// GeneratedTask is the opaque {text, solution} pair supplied by the external
// task generator. Content quality is not validated here.
type GeneratedTask struct {
	Text     string
	Solution string
}

// GenerateRequest describes what kind of task to generate.
type GenerateRequest struct {
	Subject    string
	Topic      string
	Difficulty Difficulty
	// LearnerContext is an optional free-text hint about the learner.
	LearnerContext string
}

// Generator supplies task text from an external service. Implementations must
// degrade to a generic fallback task on failure rather than blocking progress.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (GeneratedTask, error)
}

// Evaluation is the external evaluator's verdict on a submitted answer.
type Evaluation struct {
	Score    int // 0-100
	Feedback string
}

// Evaluator grades a learner's free-text answer against the task text and
// reference solution. Only the numeric score drives the lifecycle.
type Evaluator interface {
	Evaluate(ctx context.Context, taskText, solution, answer string) (Evaluation, error)
}

// FallbackTask returns the generic task used when the generator is
// unreachable, so a failed external call never blocks progress.
func FallbackTask(req GenerateRequest) GeneratedTask {
	topic := req.Topic
	if topic == "" {
		topic = req.Subject
	}
	if topic == "" {
		topic = "your current subject"
	}
	return GeneratedTask{
		Text: "Review your notes on " + topic + " and summarize the three most important ideas in your own words.",
	}
}
