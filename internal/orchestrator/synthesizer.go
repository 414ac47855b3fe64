package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mkarras/foreman/pkg/models"
)

// summarySession is the conversational surface the synthesizer needs.
// worker.Session satisfies it.
type summarySession interface {
	ExecuteTask(ctx context.Context, description string, depContext map[string]string) (string, error)
}

// Synthesizer produces a final natural-language summary from the ordered
// list of per-task results using a chat-only session.
type Synthesizer struct {
	session summarySession
}

// NewSynthesizer creates a Synthesizer backed by the given session.
func NewSynthesizer(session summarySession) *Synthesizer {
	return &Synthesizer{session: session}
}

// Summarize asks the session to condense the task results into a final
// answer for the user. A generation failure is recovered locally: the
// returned summary then explains the failure instead of raising, so the
// run still completes. Context cancellation is the exception and is
// always propagated.
func (s *Synthesizer) Summarize(ctx context.Context, goal string, results []models.TaskResult) (string, error) {
	prompt := summaryPrompt(goal, results)

	reply, err := s.session.ExecuteTask(ctx, prompt, nil)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		debugLog("summary generation failed, substituting fallback: %v", err)
		return fallbackSummary(results, err), nil
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return fallbackSummary(results, errors.New("empty summary reply")), nil
	}
	return reply, nil
}

func summaryPrompt(goal string, results []models.TaskResult) string {
	var b strings.Builder
	b.WriteString("The following subtasks were executed to accomplish this goal:\n\n")
	b.WriteString("Goal: ")
	b.WriteString(goal)
	b.WriteString("\n\nResults:\n")
	for _, res := range results {
		fmt.Fprintf(&b, "\n## Task %d (%s, %s)\n%s\n%s\n", res.Index, res.WorkerRole, res.Status, res.Description, res.Output)
	}
	b.WriteString("\nWrite a concise summary of what was accomplished, noting any tasks that failed or were skipped.")
	return b.String()
}

// fallbackSummary builds an explanatory summary when generation fails.
func fallbackSummary(results []models.TaskResult, cause error) string {
	succeeded := 0
	for _, res := range results {
		if res.Status == models.TaskStatusSuccess {
			succeeded++
		}
	}
	return fmt.Sprintf("Summary generation failed (%v). %d of %d tasks completed successfully; see individual task outputs above.", cause, succeeded, len(results))
}
