package domain

type RouterRequestAddTask struct {
	TaskType       string         `json:"type" binding:"required,validate_task_type"`
	Title          string         `json:"title" binding:"required"`
	Description    string         `json:"description"`
	ManualPriority *int           `json:"manual_priority" binding:"omitempty,validate_priority"`
	MaxRetries     *int           `json:"max_retries"`
	Parameters     map[string]any `json:"parameters"`
	Features       *Features      `json:"features"`
}

type RouterRequestAddTaskBatch struct {
	Tasks []RouterRequestAddTask `json:"tasks" binding:"required,min=1,dive"`
}
