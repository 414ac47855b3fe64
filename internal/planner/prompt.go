package planner

// planningPrompt is the template for turning a user goal into a worker
// selection and task DAG. The %s verbs are the worker catalog listing and
// the goal.
const planningPrompt = `You are a lead coordinator planning work for a team of specialized worker agents.

Available workers:
%s
User goal:
%s

Select the workers needed and break the goal into subtasks. Return ONLY a JSON object with this exact structure (no other text):
{
  "workers": ["explorer", "coder"],
  "tasks": [
    {
      "worker_role": "explorer",
      "description": "Detailed description of what this worker should do",
      "depends_on": []
    },
    {
      "worker_role": "coder",
      "description": "Implement the change using the explorer's findings",
      "depends_on": [0]
    }
  ]
}

Guidelines:
- depends_on lists the zero-based indices of tasks that must complete first
- Tasks with no dependency between them run in parallel; only add dependencies when one task truly needs another's output
- Each task should be completable by a single worker in one sitting
- Prefer read-only workers for investigation and full-tools workers for changes
- Use an empty array [] for depends_on when a task has no prerequisites
- Never create circular dependencies`
