package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/quorum-hq/quorum/internal/closure"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeClosureDigest is the task type emitted after a container closes.
	TaskTypeClosureDigest = "closure:digest"
)

// ClosureDigestPayload carries the summary of a completed close to the
// background worker.
type ClosureDigestPayload struct {
	Kind        string    `json:"kind"`
	ContainerID string    `json:"container_id"`
	ProjectID   string    `json:"project_id"`
	Title       string    `json:"title"`
	Mode        string    `json:"mode"`
	Disposed    int       `json:"disposed"`
	ClosedAt    time.Time `json:"closed_at"`
}

// NewClosureDigestTask constructs an Asynq task from a digest payload.
func NewClosureDigestTask(payload ClosureDigestPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeClosureDigest, data), nil
}

// HandleClosureDigestTask processes TaskTypeClosureDigest tasks.
func HandleClosureDigestTask(ctx context.Context, t *asynq.Task) error {
	var payload ClosureDigestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	slog.InfoContext(ctx, "closure digest",
		slog.String("kind", payload.Kind),
		slog.String("container", payload.ContainerID),
		slog.String("project", payload.ProjectID),
		slog.String("title", payload.Title),
		slog.String("mode", payload.Mode),
		slog.Int("disposed", payload.Disposed),
		slog.Time("closed_at", payload.ClosedAt))
	return nil
}

// AsynqNotifier enqueues closure digests through Asynq.
type AsynqNotifier struct {
	client *asynq.Client
}

// NewAsynqNotifier constructs an AsynqNotifier.
func NewAsynqNotifier(client *asynq.Client) *AsynqNotifier {
	return &AsynqNotifier{client: client}
}

// ClosureCompleted enqueues a digest task for the completed close.
func (n *AsynqNotifier) ClosureCompleted(ctx context.Context, digest closure.Digest) error {
	task, err := NewClosureDigestTask(ClosureDigestPayload{
		Kind:        string(digest.Kind),
		ContainerID: digest.ContainerID,
		ProjectID:   digest.ProjectID,
		Title:       digest.Title,
		Mode:        string(digest.Mode),
		Disposed:    digest.Disposed,
		ClosedAt:    digest.ClosedAt,
	})
	if err != nil {
		return err
	}
	_, err = n.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}
