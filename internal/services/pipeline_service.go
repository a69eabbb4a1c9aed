package services

import (
	"bytes"
	"context"
	stderrors "errors"
	"time"

	"go.uber.org/zap"

	"github.com/aihub/policyqa-go/internal/audit"
	"github.com/aihub/policyqa-go/internal/config"
	"github.com/aihub/policyqa-go/internal/errors"
	"github.com/aihub/policyqa-go/internal/knowledge"
	"github.com/aihub/policyqa-go/internal/logger"
	"github.com/aihub/policyqa-go/internal/storage"
)

// QueryResult 一次问答的完整结果
type QueryResult struct {
	Query          string                       `json:"query"`
	Answer         string                       `json:"answer"`
	Summary        string                       `json:"summary"`
	DetailedAnswer string                       `json:"detailed_answer"`
	Followups      []string                     `json:"followup_questions"`
	Citations      []knowledge.Citation         `json:"citations"`
	PolicyCheck    *knowledge.PolicyCheckResult `json:"policy_check"`
	RetrievedCount int                          `json:"retrieved_count"`
	ElapsedMs      int64                        `json:"elapsed_ms"`
}

// IngestResult 摄取结果
type IngestResult struct {
	TaskID     string                    `json:"task_id"`
	DocumentID string                    `json:"document_id"`
	Filename   string                    `json:"filename"`
	ChunkCount int                       `json:"chunk_count"`
	State      string                    `json:"state"`
	Statistics knowledge.ChunkStatistics `json:"statistics"`
}

// IndexStats 索引统计
type IndexStats struct {
	DocumentCount int                         `json:"document_count"`
	ChunkCount    int                         `json:"chunk_count"`
	Documents     []knowledge.DocumentSummary `json:"documents"`
	TaskCounts    map[string]int              `json:"task_counts"`
}

// PipelineService 问答管道编排器。
// 摄取路径：提取 -> 分块 -> 向量化 -> 索引；查询路径：检索 -> 生成 -> 检查。
// 各阶段服务启动时注入，无请求级全局状态。
type PipelineService struct {
	extractor     *knowledge.ExtractorManager
	chunker       *knowledge.Chunker
	embedder      knowledge.Embedder
	store         knowledge.VectorStore
	retriever     *knowledge.Retriever
	synthesizer   *knowledge.Synthesizer
	policyChecker *knowledge.PolicyChecker
	tasks         *TaskService
	recorder      audit.Recorder
	documentStore *storage.DocumentStore

	callTimeout  time.Duration
	maxCitations int
	// ingestSem 限制并发摄取的信号量
	ingestSem chan struct{}
}

// PipelineOptions 管道依赖与参数
type PipelineOptions struct {
	Extractor     *knowledge.ExtractorManager
	Chunker       *knowledge.Chunker
	Embedder      knowledge.Embedder
	Store         knowledge.VectorStore
	Retriever     *knowledge.Retriever
	Synthesizer   *knowledge.Synthesizer
	PolicyChecker *knowledge.PolicyChecker
	Tasks         *TaskService
	Recorder      audit.Recorder
	DocumentStore *storage.DocumentStore
	Pipeline      config.PipelineConfig
}

// NewPipelineService 创建管道编排器
func NewPipelineService(opts PipelineOptions) *PipelineService {
	maxParallel := opts.Pipeline.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 4
	}
	callTimeout := opts.Pipeline.CallTimeout
	if callTimeout <= 0 {
		callTimeout = 60 * time.Second
	}
	maxCitations := opts.Pipeline.MaxCitations
	if maxCitations <= 0 {
		maxCitations = 3
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = audit.NewLogRecorder()
	}

	return &PipelineService{
		extractor:     opts.Extractor,
		chunker:       opts.Chunker,
		embedder:      opts.Embedder,
		store:         opts.Store,
		retriever:     opts.Retriever,
		synthesizer:   opts.Synthesizer,
		policyChecker: opts.PolicyChecker,
		tasks:         opts.Tasks,
		recorder:      recorder,
		documentStore: opts.DocumentStore,
		callTimeout:   callTimeout,
		maxCitations:  maxCitations,
		ingestSem:     make(chan struct{}, maxParallel),
	}
}

// IngestDocument 同步摄取一个文档，状态机：
// Received -> Extracted -> Chunked -> Embedded -> Indexed -> Complete。
// 任一阶段失败回滚已写入的向量并标记Failed。
func (s *PipelineService) IngestDocument(ctx context.Context, filename string, content []byte) (*IngestResult, error) {
	if filename == "" {
		return nil, errors.NewValidationError("filename is empty")
	}
	if len(content) == 0 {
		return nil, errors.NewValidationError("file content is empty")
	}

	s.ingestSem <- struct{}{}
	defer func() { <-s.ingestSem }()

	documentID := knowledge.NewDocumentID(filename)
	task, err := s.tasks.CreateTask(ctx, documentID, filename)
	if err != nil {
		return nil, err
	}

	result, err := s.runIngest(ctx, task, documentID, filename, content)
	if err != nil {
		s.failIngest(ctx, task.TaskID, documentID, filename, err)
		return nil, err
	}
	return result, nil
}

// IngestDocumentAsync 异步摄取，立即返回任务ID，调用方通过任务状态轮询进度
func (s *PipelineService) IngestDocumentAsync(ctx context.Context, filename string, content []byte) (*IngestTask, error) {
	if filename == "" {
		return nil, errors.NewValidationError("filename is empty")
	}
	if len(content) == 0 {
		return nil, errors.NewValidationError("file content is empty")
	}

	documentID := knowledge.NewDocumentID(filename)
	task, err := s.tasks.CreateTask(ctx, documentID, filename)
	if err != nil {
		return nil, err
	}

	go func() {
		bgCtx := context.Background()
		s.ingestSem <- struct{}{}
		defer func() { <-s.ingestSem }()

		if _, runErr := s.runIngest(bgCtx, task, documentID, filename, content); runErr != nil {
			s.failIngest(bgCtx, task.TaskID, documentID, filename, runErr)
		}
	}()

	return task, nil
}

func (s *PipelineService) runIngest(ctx context.Context, task *IngestTask, documentID, filename string, content []byte) (*IngestResult, error) {
	// 提取
	extracted, err := s.extractor.ExtractFile(bytes.NewReader(content), filename)
	if err != nil {
		return nil, errors.GetAppError(err).WithStage("extract").WithDocument(documentID)
	}
	if err := s.tasks.UpdateState(ctx, task.TaskID, TaskStateExtracted); err != nil {
		logger.Warn("更新任务状态失败", zap.Error(err))
	}

	// 分块
	doc := knowledge.Document{
		DocumentID:   documentID,
		Filename:     filename,
		DocumentType: extracted.DocumentType,
		RawText:      extracted.RawText,
		PageMap:      extracted.PageMap,
	}
	chunks, err := s.chunker.Chunk(doc)
	if err != nil {
		return nil, errors.GetAppError(err).WithStage("chunk").WithDocument(documentID)
	}
	if err := s.tasks.UpdateState(ctx, task.TaskID, TaskStateChunked); err != nil {
		logger.Warn("更新任务状态失败", zap.Error(err))
	}
	if err := s.tasks.SetChunkCount(ctx, task.TaskID, len(chunks)); err != nil {
		logger.Warn("记录分块数失败", zap.Error(err))
	}

	// 向量化
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := callWithTimeout(ctx, s.callTimeout, "embed", func(callCtx context.Context) ([][]float32, error) {
		return s.embedder.EmbedBatch(callCtx, texts)
	})
	if err != nil {
		return nil, err
	}
	if err := s.tasks.UpdateState(ctx, task.TaskID, TaskStateEmbedded); err != nil {
		logger.Warn("更新任务状态失败", zap.Error(err))
	}

	// 索引
	if err := s.withTimeout(ctx, "index", func(callCtx context.Context) error {
		return s.store.UpsertDocument(callCtx, documentID, chunks, vectors)
	}); err != nil {
		return nil, err
	}
	if err := s.tasks.UpdateState(ctx, task.TaskID, TaskStateIndexed); err != nil {
		logger.Warn("更新任务状态失败", zap.Error(err))
	}

	// 归档原始文件（可选，失败不影响摄取结果）
	if s.documentStore != nil {
		if archiveErr := s.documentStore.SaveOriginal(ctx, documentID, filename,
			bytes.NewReader(content), int64(len(content)), ""); archiveErr != nil {
			logger.Warn("归档原始文档失败", zap.String("document_id", documentID), zap.Error(archiveErr))
		}
	}

	if err := s.tasks.UpdateState(ctx, task.TaskID, TaskStateComplete); err != nil {
		logger.Warn("更新任务状态失败", zap.Error(err))
	}

	stats := knowledge.GetChunkStatistics(chunks)
	if err := s.recorder.Record(audit.NewEvent(audit.EventDocumentIngested, map[string]interface{}{
		"document_id": documentID,
		"filename":    filename,
		"chunk_count": stats.TotalChunks,
		"token_count": stats.TotalTokens,
	})); err != nil {
		logger.Warn("记录审计事件失败", zap.Error(err))
	}

	logger.Info("文档摄取完成",
		zap.String("document_id", documentID),
		zap.String("filename", filename),
		zap.Int("chunks", len(chunks)))

	return &IngestResult{
		TaskID:     task.TaskID,
		DocumentID: documentID,
		Filename:   filename,
		ChunkCount: len(chunks),
		State:      TaskStateComplete,
		Statistics: stats,
	}, nil
}

// failIngest 摄取失败的统一处理：回滚向量、标记任务失败、记录审计
func (s *PipelineService) failIngest(ctx context.Context, taskID, documentID, filename string, cause error) {
	// 回滚用独立上下文，原请求可能已超时或被取消
	rollbackCtx, cancel := context.WithTimeout(context.Background(), s.callTimeout)
	defer cancel()
	if rollbackErr := s.store.DeleteDocument(rollbackCtx, documentID); rollbackErr != nil {
		logger.Error("摄取失败后回滚向量失败",
			zap.String("document_id", documentID), zap.Error(rollbackErr))
	}
	if err := s.tasks.MarkFailed(ctx, taskID, cause); err != nil {
		logger.Warn("标记任务失败状态出错", zap.Error(err))
	}
	if err := s.recorder.Record(audit.NewEvent(audit.EventIngestFailed, map[string]interface{}{
		"document_id": documentID,
		"filename":    filename,
		"error":       cause.Error(),
	})); err != nil {
		logger.Warn("记录审计事件失败", zap.Error(err))
	}
	logger.Error("文档摄取失败",
		zap.String("document_id", documentID),
		zap.String("filename", filename),
		zap.Error(cause))
}

// Query 执行一次问答。空索引或无命中时不调用生成服务，直接返回无资料答复且置信度为0。
// 策略检查失败只降级，不阻断答案返回。
func (s *PipelineService) Query(ctx context.Context, question string) (*QueryResult, error) {
	start := time.Now()

	retrieved, err := callWithTimeout(ctx, s.callTimeout, "retrieve", func(callCtx context.Context) ([]knowledge.RetrievedChunk, error) {
		return s.retriever.Retrieve(callCtx, question)
	})
	if err != nil {
		s.recordQueryFailed(question, err)
		return nil, err
	}

	if len(retrieved) == 0 {
		answer := "I could not find relevant information in the indexed documents to answer this question."
		result := &QueryResult{
			Query:          question,
			Answer:         answer,
			Summary:        answer,
			DetailedAnswer: answer,
			Followups:      []string{},
			Citations:      []knowledge.Citation{},
			PolicyCheck: &knowledge.PolicyCheckResult{
				ConfidenceScore: 0,
				Warnings:        []string{"No relevant documents found for this query."},
				Recommendations: []string{"Try rephrasing the question or ingest the relevant policy documents first."},
			},
			RetrievedCount: 0,
			ElapsedMs:      time.Since(start).Milliseconds(),
		}
		s.recordQueryAnswered(question, result)
		return result, nil
	}

	contextText := s.retriever.FormatContext(retrieved)
	answer, err := callWithTimeout(ctx, s.callTimeout, "generate", func(callCtx context.Context) (*knowledge.AnswerResult, error) {
		return s.synthesizer.Synthesize(callCtx, question, contextText)
	})
	if err != nil {
		s.recordQueryFailed(question, err)
		return nil, err
	}

	citations := s.retriever.GetCitations(retrieved, s.maxCitations)

	// 策略检查自身不会失败，子检查错误在内部按无发现处理
	policyCheck := s.policyChecker.CheckPolicy(ctx, answer.Answer, retrieved, question)

	result := &QueryResult{
		Query:          question,
		Answer:         answer.Answer,
		Summary:        answer.Summary,
		DetailedAnswer: answer.DetailedAnswer,
		Followups:      answer.FollowupQuestions,
		Citations:      citations,
		PolicyCheck:    policyCheck,
		RetrievedCount: len(retrieved),
		ElapsedMs:      time.Since(start).Milliseconds(),
	}
	s.recordQueryAnswered(question, result)
	return result, nil
}

// DeleteDocument 删除文档及其全部向量，对不存在的文档幂等
func (s *PipelineService) DeleteDocument(ctx context.Context, documentID string) error {
	if documentID == "" {
		return errors.NewValidationError("document id is empty")
	}

	if err := s.withTimeout(ctx, "delete", func(callCtx context.Context) error {
		return s.store.DeleteDocument(callCtx, documentID)
	}); err != nil {
		return err
	}

	if s.documentStore != nil {
		if err := s.documentStore.DeleteOriginal(ctx, documentID); err != nil {
			logger.Warn("删除归档文档失败", zap.String("document_id", documentID), zap.Error(err))
		}
	}

	if err := s.recorder.Record(audit.NewEvent(audit.EventDocumentDeleted, map[string]interface{}{
		"document_id": documentID,
	})); err != nil {
		logger.Warn("记录审计事件失败", zap.Error(err))
	}
	return nil
}

// ListDocuments 列出索引中全部文档
func (s *PipelineService) ListDocuments(ctx context.Context) ([]knowledge.DocumentSummary, error) {
	return s.store.ListDocuments(ctx)
}

// GetTask 查询摄取任务状态
func (s *PipelineService) GetTask(ctx context.Context, taskID string) (*IngestTask, error) {
	return s.tasks.GetTask(ctx, taskID)
}

// SubmitFeedback 记录用户反馈事件，只追加
func (s *PipelineService) SubmitFeedback(query, answer string, helpful bool, comment string) error {
	return s.recorder.Record(audit.NewEvent(audit.EventFeedback, map[string]interface{}{
		"query":   query,
		"answer":  answer,
		"helpful": helpful,
		"comment": comment,
	}))
}

// Stats 返回索引统计
func (s *PipelineService) Stats(ctx context.Context) (*IndexStats, error) {
	documents, err := s.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	stats := &IndexStats{
		DocumentCount: len(documents),
		Documents:     documents,
		TaskCounts:    s.tasks.CountByState(),
	}
	for _, d := range documents {
		stats.ChunkCount += d.ChunkCount
	}
	return stats, nil
}

// Ready 检查核心依赖是否就绪
func (s *PipelineService) Ready() bool {
	return s.store.Ready() && s.embedder.Ready()
}

// withTimeout 带超时执行外部调用，超时统一转为TIMEOUT错误
func (s *PipelineService) withTimeout(ctx context.Context, stage string, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	err := fn(callCtx)
	if err != nil && stderrors.Is(err, context.DeadlineExceeded) {
		return errors.NewTimeoutError(stage).WithCause(err)
	}
	if err != nil {
		return errors.GetAppError(err).WithStage(stage)
	}
	return nil
}

// callWithTimeout 带超时执行有返回值的外部调用，超时统一转为TIMEOUT错误
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, stage string, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := fn(callCtx)
	if err != nil {
		var zero T
		if stderrors.Is(err, context.DeadlineExceeded) {
			return zero, errors.NewTimeoutError(stage).WithCause(err)
		}
		return zero, errors.GetAppError(err).WithStage(stage)
	}
	return result, nil
}

func (s *PipelineService) recordQueryAnswered(question string, result *QueryResult) {
	if err := s.recorder.Record(audit.NewEvent(audit.EventQueryAnswered, map[string]interface{}{
		"query":           question,
		"retrieved_count": result.RetrievedCount,
		"confidence":      result.PolicyCheck.ConfidenceScore,
		"citation_count":  len(result.Citations),
		"elapsed_ms":      result.ElapsedMs,
	})); err != nil {
		logger.Warn("记录审计事件失败", zap.Error(err))
	}
}

func (s *PipelineService) recordQueryFailed(question string, cause error) {
	if err := s.recorder.Record(audit.NewEvent(audit.EventQueryFailed, map[string]interface{}{
		"query": question,
		"error": cause.Error(),
	})); err != nil {
		logger.Warn("记录审计事件失败", zap.Error(err))
	}
}
