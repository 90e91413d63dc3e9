package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/hibiken/asynq"
)

const (
	TaskDownloadVideo      = "video:download"
	TaskUpdateVideoDetails = "video:update_details"
	TaskPostDownload       = "video:post_download"
	TaskDownloadComments   = "video:comments"
	TaskPlaylistSync       = "playlist:sync"
	TaskChannelScan        = "channel:scan"
	TaskQualityUpgradeScan = "quality:scan"
)

type Queue struct {
	client    *asynq.Client
	server    *asynq.Server
	mux       *asynq.ServeMux
	inspector *asynq.Inspector
}

func NewQueue(redisAddr string, concurrency int) *Queue {
	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}
	client := asynq.NewClient(redisOpt)
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"downloads": 6,
				"default":   3,
				"low":       1,
			},
		},
	)
	mux := asynq.NewServeMux()
	inspector := asynq.NewInspector(redisOpt)
	return &Queue{client: client, server: server, mux: mux, inspector: inspector}
}

// isTaskConflict checks whether the error indicates a task ID conflict,
// using errors.Is for unwrapped sentinel values and a string fallback.
func isTaskConflict(err error) bool {
	if errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "task ID conflicts") || strings.Contains(msg, "duplicate task")
}

// EnqueueUnique enqueues a task with a deterministic TaskID so the same
// video or playlist never has two pending copies of the same work. A
// lingering completed task with the same ID is cleared and the enqueue
// retried; an actively running task wins and the enqueue is skipped.
func (q *Queue) EnqueueUnique(taskType string, payload interface{}, uniqueID string, opts ...asynq.Option) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	opts = append(opts, asynq.TaskID(uniqueID))
	task := asynq.NewTask(taskType, data, opts...)
	info, err := q.client.Enqueue(task)
	if err == nil {
		return info.ID, nil
	}

	if !isTaskConflict(err) {
		return "", fmt.Errorf("enqueue: %w", err)
	}

	cleared := false
	for _, queueName := range []string{"downloads", "default", "low"} {
		if delErr := q.inspector.DeleteTask(queueName, uniqueID); delErr == nil {
			log.Printf("Queue: cleared stale task %s from queue %s", uniqueID, queueName)
			cleared = true
			break
		}
	}

	if cleared {
		info, err = q.client.Enqueue(task)
		if err == nil {
			return info.ID, nil
		}
	}

	if isTaskConflict(err) {
		log.Printf("Queue: task %s (%s) is already active, skipping", taskType, uniqueID)
		return uniqueID, nil
	}
	return "", fmt.Errorf("enqueue: %w", err)
}

func (q *Queue) RegisterHandler(taskType string, handler asynq.Handler) {
	q.mux.Handle(taskType, handler)
}

func (q *Queue) Enqueue(taskType string, payload interface{}, opts ...asynq.Option) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data, opts...)
	info, err := q.client.Enqueue(task)
	if err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}
	return info.ID, nil
}

func (q *Queue) Start(ctx context.Context) error {
	log.Println("Job queue worker starting...")
	return q.server.Start(q.mux)
}

func (q *Queue) Stop() {
	q.server.Shutdown()
	q.client.Close()
	q.inspector.Close()
}

func (q *Queue) Client() *asynq.Client {
	return q.client
}
