package di

import (
	"fmt"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/aihub/policyqa-go/internal/audit"
	"github.com/aihub/policyqa-go/internal/config"
	"github.com/aihub/policyqa-go/internal/knowledge"
	"github.com/aihub/policyqa-go/internal/logger"
	"github.com/aihub/policyqa-go/internal/services"
	"github.com/aihub/policyqa-go/internal/storage"
)

// RegisterProviders 注册所有依赖提供者
func RegisterProviders(container *dig.Container) error {
	// 配置
	if err := container.Provide(func() (*config.Config, error) {
		cfg := config.GetAppConfig()
		if cfg == nil {
			return nil, fmt.Errorf("config not loaded")
		}
		return cfg, nil
	}); err != nil {
		return err
	}

	// 向量化服务
	if err := container.Provide(func(cfg *config.Config) knowledge.Embedder {
		switch cfg.Embedding.Provider {
		case "dashscope":
			return knowledge.NewDashScopeEmbedder(cfg.Embedding.Model)
		default:
			return knowledge.NewOpenAIEmbedder(cfg.Embedding.APIKey, cfg.Embedding.Model)
		}
	}); err != nil {
		return err
	}

	// 文本生成服务
	if err := container.Provide(func(cfg *config.Config) knowledge.Generator {
		switch cfg.Generation.Provider {
		case "dashscope":
			return knowledge.NewDashScopeGenerator(cfg.Generation.Model)
		default:
			generator := knowledge.NewOpenAIGenerator(cfg.Generation.APIKey, cfg.Generation.Model)
			if generator == nil {
				logger.Warn("OpenAI generator not configured, using noop generator")
				return knowledge.NoopGenerator{}
			}
			return generator
		}
	}); err != nil {
		return err
	}

	// 向量存储
	if err := container.Provide(func(cfg *config.Config, embedder knowledge.Embedder) (knowledge.VectorStore, error) {
		if cfg.VectorStore.Provider == "milvus" {
			store, err := knowledge.NewMilvusVectorStore(knowledge.MilvusOptions{
				Address:    cfg.VectorStore.Milvus.Address,
				Username:   cfg.VectorStore.Milvus.Username,
				Password:   cfg.VectorStore.Milvus.Password,
				Collection: cfg.VectorStore.Milvus.Collection,
				Database:   cfg.VectorStore.Milvus.Database,
				VectorSize: cfg.VectorStore.Milvus.VectorSize,
				UseTLS:     cfg.VectorStore.Milvus.TLS,
			})
			if err == nil {
				logger.Info("vector store initialized",
					zap.String("provider", "milvus"),
					zap.String("address", cfg.VectorStore.Milvus.Address))
				return store, nil
			}
			logger.Warn("Milvus不可用，退回内存向量存储", zap.Error(err))
		}
		dims := embedder.Dimensions()
		if dims <= 0 {
			dims = 1536
		}
		return knowledge.NewMemoryVectorStore(dims)
	}); err != nil {
		return err
	}

	// 分块器
	if err := container.Provide(func(cfg *config.Config) *knowledge.Chunker {
		return knowledge.NewChunker(cfg.Pipeline.ChunkSize, cfg.Pipeline.ChunkOverlap)
	}); err != nil {
		return err
	}

	// 文本提取器
	if err := container.Provide(knowledge.NewExtractorManager); err != nil {
		return err
	}

	// 检索器
	if err := container.Provide(func(cfg *config.Config, embedder knowledge.Embedder, store knowledge.VectorStore) *knowledge.Retriever {
		return knowledge.NewRetriever(embedder, store, cfg.Pipeline.TopK, cfg.Pipeline.SnippetLength)
	}); err != nil {
		return err
	}

	// 答案生成器
	if err := container.Provide(func(cfg *config.Config, generator knowledge.Generator) *knowledge.Synthesizer {
		return knowledge.NewSynthesizer(generator, cfg.Generation.Temperature, cfg.Generation.MaxTokens)
	}); err != nil {
		return err
	}

	// 矛盾检测：生成服务可用时用LLM检测，否则用规则检测
	if err := container.Provide(func(generator knowledge.Generator) knowledge.ContradictionChecker {
		if generator.Ready() {
			return knowledge.NewLLMContradictionChecker(generator)
		}
		return knowledge.NewHeuristicContradictionChecker()
	}); err != nil {
		return err
	}

	// 策略检查器
	if err := container.Provide(func(cfg *config.Config, checker knowledge.ContradictionChecker) *knowledge.PolicyChecker {
		return knowledge.NewPolicyChecker(checker, cfg.Pipeline.MaxCitations)
	}); err != nil {
		return err
	}

	// 任务状态服务
	if err := container.Provide(func(cfg *config.Config) *services.TaskService {
		return services.NewTaskService(cfg.Redis)
	}); err != nil {
		return err
	}

	// 审计记录器
	if err := container.Provide(func(cfg *config.Config) audit.Recorder {
		if cfg.Kafka.Enabled {
			recorder, err := audit.NewKafkaRecorder(cfg.Kafka.Brokers, cfg.Kafka.Topic)
			if err == nil {
				return recorder
			}
			logger.Warn("Kafka不可用，审计事件降级为日志记录", zap.Error(err))
		}
		return audit.NewLogRecorder()
	}); err != nil {
		return err
	}

	// 文档归档存储（未配置时为nil，管道内跳过归档）
	if err := container.Provide(func(cfg *config.Config) *storage.DocumentStore {
		if cfg.Storage.Provider == "none" || cfg.Storage.Endpoint == "" {
			return nil
		}
		store, err := storage.NewDocumentStore(cfg.Storage)
		if err != nil {
			logger.Warn("对象存储不可用，跳过原始文档归档", zap.Error(err))
			return nil
		}
		return store
	}); err != nil {
		return err
	}

	// 管道编排器
	if err := container.Provide(func(
		cfg *config.Config,
		extractor *knowledge.ExtractorManager,
		chunker *knowledge.Chunker,
		embedder knowledge.Embedder,
		store knowledge.VectorStore,
		retriever *knowledge.Retriever,
		synthesizer *knowledge.Synthesizer,
		policyChecker *knowledge.PolicyChecker,
		tasks *services.TaskService,
		recorder audit.Recorder,
		documentStore *storage.DocumentStore,
	) *services.PipelineService {
		return services.NewPipelineService(services.PipelineOptions{
			Extractor:     extractor,
			Chunker:       chunker,
			Embedder:      embedder,
			Store:         store,
			Retriever:     retriever,
			Synthesizer:   synthesizer,
			PolicyChecker: policyChecker,
			Tasks:         tasks,
			Recorder:      recorder,
			DocumentStore: documentStore,
			Pipeline:      cfg.Pipeline,
		})
	}); err != nil {
		return err
	}

	return nil
}
