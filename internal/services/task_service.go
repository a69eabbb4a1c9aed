package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aihub/policyqa-go/internal/config"
	"github.com/aihub/policyqa-go/internal/errors"
	"github.com/aihub/policyqa-go/internal/logger"
)

// 摄取任务状态机：Received -> Extracted -> Chunked -> Embedded -> Indexed -> Complete
// 任一阶段失败进入Failed，状态只向前推进。
const (
	TaskStateReceived  = "received"
	TaskStateExtracted = "extracted"
	TaskStateChunked   = "chunked"
	TaskStateEmbedded  = "embedded"
	TaskStateIndexed   = "indexed"
	TaskStateComplete  = "complete"
	TaskStateFailed    = "failed"
)

// IngestTask 摄取任务记录
type IngestTask struct {
	TaskID     string    `json:"task_id"`
	DocumentID string    `json:"document_id"`
	Filename   string    `json:"filename"`
	State      string    `json:"state"`
	Error      string    `json:"error,omitempty"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TaskService 摄取任务状态存储。配置了Redis时持久化并带TTL，否则退化为进程内存储。
type TaskService struct {
	client *redis.Client
	ttl    time.Duration

	mu    sync.RWMutex
	tasks map[string]*IngestTask
}

// NewTaskService 创建任务服务
func NewTaskService(cfg config.RedisConfig) *TaskService {
	service := &TaskService{
		tasks: make(map[string]*IngestTask),
		ttl:   time.Duration(cfg.TTL) * time.Second,
	}
	if service.ttl == 0 {
		service.ttl = 24 * time.Hour
	}

	if cfg.Enabled && cfg.Host != "" {
		client := redis.NewClient(&redis.Options{
			Addr: fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
			DB:   cfg.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis不可用，任务状态仅存内存", zap.Error(err))
		} else {
			service.client = client
			logger.Info("任务状态存储使用Redis", zap.String("addr", client.Options().Addr))
		}
	}
	return service
}

func taskKey(taskID string) string {
	return "policyqa:task:" + taskID
}

// CreateTask 创建新任务，初始状态Received
func (s *TaskService) CreateTask(ctx context.Context, documentID, filename string) (*IngestTask, error) {
	now := time.Now()
	task := &IngestTask{
		TaskID:     uuid.New().String(),
		DocumentID: documentID,
		Filename:   filename,
		State:      TaskStateReceived,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.save(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateState 推进任务状态
func (s *TaskService) UpdateState(ctx context.Context, taskID, state string) error {
	return s.update(ctx, taskID, func(task *IngestTask) {
		task.State = state
	})
}

// MarkFailed 标记任务失败并记录错误信息
func (s *TaskService) MarkFailed(ctx context.Context, taskID string, cause error) error {
	return s.update(ctx, taskID, func(task *IngestTask) {
		task.State = TaskStateFailed
		if cause != nil {
			task.Error = cause.Error()
		}
	})
}

// SetChunkCount 记录任务产生的分块数
func (s *TaskService) SetChunkCount(ctx context.Context, taskID string, count int) error {
	return s.update(ctx, taskID, func(task *IngestTask) {
		task.ChunkCount = count
	})
}

// GetTask 查询任务状态
func (s *TaskService) GetTask(ctx context.Context, taskID string) (*IngestTask, error) {
	if s.client != nil {
		data, err := s.client.Get(ctx, taskKey(taskID)).Result()
		if err == nil {
			var task IngestTask
			if jsonErr := json.Unmarshal([]byte(data), &task); jsonErr == nil {
				return &task, nil
			}
		} else if err != redis.Nil {
			logger.Warn("读取任务状态失败，回退内存查询", zap.Error(err))
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, errors.NewNotFoundError("task")
	}
	copied := *task
	return &copied, nil
}

// CountByState 按状态统计任务数，基于进程内记录
func (s *TaskService) CountByState() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, task := range s.tasks {
		counts[task.State]++
	}
	return counts
}

func (s *TaskService) update(ctx context.Context, taskID string, apply func(*IngestTask)) error {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	apply(task)
	task.UpdatedAt = time.Now()
	return s.save(ctx, task)
}

func (s *TaskService) save(ctx context.Context, task *IngestTask) error {
	s.mu.Lock()
	copied := *task
	s.tasks[task.TaskID] = &copied
	s.mu.Unlock()

	if s.client != nil {
		data, err := json.Marshal(task)
		if err != nil {
			return fmt.Errorf("序列化任务失败: %w", err)
		}
		if err := s.client.Set(ctx, taskKey(task.TaskID), data, s.ttl).Err(); err != nil {
			logger.Warn("写入任务状态到Redis失败", zap.String("task_id", task.TaskID), zap.Error(err))
		}
	}
	return nil
}
