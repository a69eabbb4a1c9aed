package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aihub/policyqa-go/internal/config"
	apperrors "github.com/aihub/policyqa-go/internal/errors"
)

func newMemoryTaskService() *TaskService {
	return NewTaskService(config.RedisConfig{Enabled: false})
}

func TestTaskServiceCreateTask(t *testing.T) {
	service := newMemoryTaskService()
	ctx := context.Background()

	task, err := service.CreateTask(ctx, "doc1", "policy.txt")
	require.NoError(t, err)
	assert.NotEmpty(t, task.TaskID)
	assert.Equal(t, "doc1", task.DocumentID)
	assert.Equal(t, "policy.txt", task.Filename)
	assert.Equal(t, TaskStateReceived, task.State)
	assert.False(t, task.CreatedAt.IsZero())

	loaded, err := service.GetTask(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, task.TaskID, loaded.TaskID)
	assert.Equal(t, TaskStateReceived, loaded.State)
}

// 状态机正向推进：Received -> Extracted -> Chunked -> Embedded -> Indexed -> Complete
func TestTaskServiceStateProgression(t *testing.T) {
	service := newMemoryTaskService()
	ctx := context.Background()

	task, err := service.CreateTask(ctx, "doc1", "policy.txt")
	require.NoError(t, err)

	states := []string{
		TaskStateExtracted,
		TaskStateChunked,
		TaskStateEmbedded,
		TaskStateIndexed,
		TaskStateComplete,
	}
	for _, state := range states {
		require.NoError(t, service.UpdateState(ctx, task.TaskID, state))
		loaded, getErr := service.GetTask(ctx, task.TaskID)
		require.NoError(t, getErr)
		assert.Equal(t, state, loaded.State)
	}
}

func TestTaskServiceMarkFailed(t *testing.T) {
	service := newMemoryTaskService()
	ctx := context.Background()

	task, err := service.CreateTask(ctx, "doc1", "policy.txt")
	require.NoError(t, err)

	require.NoError(t, service.MarkFailed(ctx, task.TaskID, fmt.Errorf("embedding backend unreachable")))

	loaded, err := service.GetTask(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, TaskStateFailed, loaded.State)
	assert.Contains(t, loaded.Error, "embedding backend unreachable")
}

func TestTaskServiceSetChunkCount(t *testing.T) {
	service := newMemoryTaskService()
	ctx := context.Background()

	task, err := service.CreateTask(ctx, "doc1", "policy.txt")
	require.NoError(t, err)

	require.NoError(t, service.SetChunkCount(ctx, task.TaskID, 12))
	loaded, err := service.GetTask(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, 12, loaded.ChunkCount)
}

func TestTaskServiceGetTaskNotFound(t *testing.T) {
	service := newMemoryTaskService()

	_, err := service.GetTask(context.Background(), "no-such-task")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeResourceNotFound))
}

func TestTaskServiceCountByState(t *testing.T) {
	service := newMemoryTaskService()
	ctx := context.Background()

	first, err := service.CreateTask(ctx, "doc1", "a.txt")
	require.NoError(t, err)
	_, err = service.CreateTask(ctx, "doc2", "b.txt")
	require.NoError(t, err)
	require.NoError(t, service.UpdateState(ctx, first.TaskID, TaskStateComplete))

	counts := service.CountByState()
	assert.Equal(t, 1, counts[TaskStateComplete])
	assert.Equal(t, 1, counts[TaskStateReceived])
}

// GetTask返回副本，调用方修改不影响存储的任务
func TestTaskServiceGetTaskReturnsCopy(t *testing.T) {
	service := newMemoryTaskService()
	ctx := context.Background()

	task, err := service.CreateTask(ctx, "doc1", "policy.txt")
	require.NoError(t, err)

	loaded, err := service.GetTask(ctx, task.TaskID)
	require.NoError(t, err)
	loaded.State = "tampered"

	again, err := service.GetTask(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, TaskStateReceived, again.State)
}
