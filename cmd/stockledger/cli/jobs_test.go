package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/jobs"
)

type stubEnqueuer struct {
	tasks []*asynq.Task
}

func (s *stubEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "t-1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func (s *stubEnqueuer) Close() error { return nil }

type stubInspector struct {
	info *asynq.QueueInfo
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, nil }
func (s stubInspector) Close() error                                  { return nil }

func TestTriggerCleanupCarriesRetention(t *testing.T) {
	client := &stubEnqueuer{}
	c := &JobsCLI{client: client, retention: 48 * time.Hour}

	var out bytes.Buffer
	require.NoError(t, c.Run(context.Background(), []string{"trigger", jobs.TaskIdempotencyCleanup}, &out))
	require.Equal(t, "enqueued idempotency:cleanup id=t-1 queue=default\n", out.String())

	require.Len(t, client.tasks, 1)
	var payload jobs.CleanupPayload
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &payload))
	require.Equal(t, 48*time.Hour, payload.Retention)
}

func TestTriggerRejectsUnknownJob(t *testing.T) {
	c := &JobsCLI{client: &stubEnqueuer{}}
	_, err := c.Trigger(context.Background(), "mail:send")
	require.ErrorContains(t, err, "unsupported job")
}

func TestStats(t *testing.T) {
	c := &JobsCLI{inspector: stubInspector{info: &asynq.QueueInfo{Queue: "default", Pending: 2, Retry: 1}}}
	var out bytes.Buffer
	require.NoError(t, c.Run(context.Background(), []string{"stats"}, &out))
	require.Equal(t, "queue=default pending=2 active=0 scheduled=0 retry=1\n", out.String())
}
