package domain

// TaskKind names a unit of pipeline work carried on the queue.
type TaskKind string

const (
	TaskAnalyzePhoto     TaskKind = "analyze_photo"
	TaskStageBackgrounds TaskKind = "generate_stage_backgrounds"
	TaskStageRender      TaskKind = "render_stage_pages"
)

// Queue routing keys. Analysis and background generation need the GPU
// inference path; page rendering is CPU-only.
const (
	QueueGPU    = "gpu"
	QueueRender = "render"
)

// Queue returns the routing key a task kind is published under.
func (k TaskKind) Queue() string {
	if k == TaskStageRender {
		return QueueRender
	}
	return QueueGPU
}

// TaskMessage is the queue payload for one unit of work.
type TaskMessage struct {
	JobID string   `json:"job_id"`
	Task  TaskKind `json:"task"`
	Stage Stage    `json:"stage,omitempty"`
	// PageNum limits a task to a single page when set (regeneration).
	PageNum *int `json:"page_num,omitempty"`
	// RandomizeSeed forces a fresh sampler seed on explicit retries.
	RandomizeSeed bool `json:"randomize_seed,omitempty"`
}
