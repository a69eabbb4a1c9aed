package config

import (
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	Pipeline    PipelineConfig
	Embedding   EmbeddingConfig
	Generation  GenerationConfig
	VectorStore VectorStoreConfig
	Kafka       KafkaConfig
	Redis       RedisConfig
	Storage     ObjectStorageConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

// PipelineConfig 问答管道配置
type PipelineConfig struct {
	ChunkSize     int           // 分块目标token数
	ChunkOverlap  int           // 相邻分块重叠token数
	TopK          int           // 默认检索数量
	MaxParallel   int           // 文档摄取并发上限
	CallTimeout   time.Duration // 单次外部调用超时
	SnippetLength int           // 引用片段最大字符数
	MaxCitations  int           // 返回引用数量上限
}

type EmbeddingConfig struct {
	Provider string // openai | dashscope
	Model    string
	APIKey   string
}

type GenerationConfig struct {
	Provider    string // openai | dashscope
	Model       string
	APIKey      string
	Temperature float64
	MaxTokens   int
}

type VectorStoreConfig struct {
	Provider string // memory | milvus
	Milvus   MilvusConfig
}

type MilvusConfig struct {
	Address    string
	Username   string
	Password   string
	Collection string
	Database   string
	TLS        bool
	VectorSize int
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	Enabled bool
}

type RedisConfig struct {
	Host    string
	Port    string
	DB      int
	TTL     int
	Enabled bool
}

type ObjectStorageConfig struct {
	Provider  string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

var AppConfig *Config

func LoadConfig() error {
	// 设置默认值
	viper.SetDefault("server.port", "8002")
	viper.SetDefault("server.env", "development")

	viper.SetDefault("pipeline.chunk_size", 512)
	viper.SetDefault("pipeline.chunk_overlap", 128)
	viper.SetDefault("pipeline.top_k", 7)
	viper.SetDefault("pipeline.max_parallel", 4)
	viper.SetDefault("pipeline.call_timeout_seconds", 60)
	viper.SetDefault("pipeline.snippet_length", 200)
	viper.SetDefault("pipeline.max_citations", 3)

	viper.SetDefault("embedding.provider", "openai")
	viper.SetDefault("embedding.model", "text-embedding-3-small")
	viper.SetDefault("embedding.api_key", "")

	viper.SetDefault("generation.provider", "openai")
	viper.SetDefault("generation.model", "gpt-4o-mini")
	viper.SetDefault("generation.api_key", "")
	viper.SetDefault("generation.temperature", 0.1)
	viper.SetDefault("generation.max_tokens", 2000)

	viper.SetDefault("vector_store.provider", "memory")
	viper.SetDefault("vector_store.milvus.address", "localhost:19530")
	viper.SetDefault("vector_store.milvus.collection", "policy_chunks")
	viper.SetDefault("vector_store.milvus.database", "default")
	viper.SetDefault("vector_store.milvus.tls", false)
	viper.SetDefault("vector_store.milvus.vector_size", 1536)

	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.topic", "policyqa-audit-events")
	viper.SetDefault("kafka.enabled", false)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttl", 86400)
	viper.SetDefault("redis.enabled", false)

	viper.SetDefault("storage.provider", "none")
	viper.SetDefault("storage.endpoint", "")
	viper.SetDefault("storage.bucket", "policy-documents")
	viper.SetDefault("storage.use_ssl", false)

	// 读取环境变量
	viper.SetEnvPrefix("POLICYQA")
	viper.AutomaticEnv()

	// 兼容常用环境变量名
	if port := os.Getenv("PORT"); port != "" {
		viper.Set("server.port", port)
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if viper.GetString("embedding.api_key") == "" {
			viper.Set("embedding.api_key", key)
		}
		if viper.GetString("generation.api_key") == "" {
			viper.Set("generation.api_key", key)
		}
	}
	if key := os.Getenv("DASHSCOPE_API_KEY"); key != "" {
		viper.Set("dashscope.api_key", key)
	}
	if addr := os.Getenv("MILVUS_ADDRESS"); addr != "" {
		viper.Set("vector_store.provider", "milvus")
		viper.Set("vector_store.milvus.address", addr)
	}
	if host := os.Getenv("REDIS_HOST"); host != "" {
		viper.Set("redis.host", host)
		viper.Set("redis.enabled", true)
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		viper.Set("kafka.brokers", []string{brokers})
		viper.Set("kafka.enabled", true)
	}
	if endpoint := os.Getenv("MINIO_ENDPOINT"); endpoint != "" {
		viper.Set("storage.provider", "minio")
		viper.Set("storage.endpoint", endpoint)
	}
	if key := os.Getenv("MINIO_ACCESS_KEY"); key != "" {
		viper.Set("storage.access_key", key)
	}
	if key := os.Getenv("MINIO_SECRET_KEY"); key != "" {
		viper.Set("storage.secret_key", key)
	}

	AppConfig = &Config{
		Server: ServerConfig{
			Port: viper.GetString("server.port"),
			Env:  viper.GetString("server.env"),
		},
		Pipeline: PipelineConfig{
			ChunkSize:     viper.GetInt("pipeline.chunk_size"),
			ChunkOverlap:  viper.GetInt("pipeline.chunk_overlap"),
			TopK:          viper.GetInt("pipeline.top_k"),
			MaxParallel:   viper.GetInt("pipeline.max_parallel"),
			CallTimeout:   time.Duration(viper.GetInt("pipeline.call_timeout_seconds")) * time.Second,
			SnippetLength: viper.GetInt("pipeline.snippet_length"),
			MaxCitations:  viper.GetInt("pipeline.max_citations"),
		},
		Embedding: EmbeddingConfig{
			Provider: viper.GetString("embedding.provider"),
			Model:    viper.GetString("embedding.model"),
			APIKey:   viper.GetString("embedding.api_key"),
		},
		Generation: GenerationConfig{
			Provider:    viper.GetString("generation.provider"),
			Model:       viper.GetString("generation.model"),
			APIKey:      viper.GetString("generation.api_key"),
			Temperature: viper.GetFloat64("generation.temperature"),
			MaxTokens:   viper.GetInt("generation.max_tokens"),
		},
		VectorStore: VectorStoreConfig{
			Provider: viper.GetString("vector_store.provider"),
			Milvus: MilvusConfig{
				Address:    viper.GetString("vector_store.milvus.address"),
				Username:   viper.GetString("vector_store.milvus.username"),
				Password:   viper.GetString("vector_store.milvus.password"),
				Collection: viper.GetString("vector_store.milvus.collection"),
				Database:   viper.GetString("vector_store.milvus.database"),
				TLS:        viper.GetBool("vector_store.milvus.tls"),
				VectorSize: viper.GetInt("vector_store.milvus.vector_size"),
			},
		},
		Kafka: KafkaConfig{
			Brokers: viper.GetStringSlice("kafka.brokers"),
			Topic:   viper.GetString("kafka.topic"),
			Enabled: viper.GetBool("kafka.enabled"),
		},
		Redis: RedisConfig{
			Host:    viper.GetString("redis.host"),
			Port:    viper.GetString("redis.port"),
			DB:      viper.GetInt("redis.db"),
			TTL:     viper.GetInt("redis.ttl"),
			Enabled: viper.GetBool("redis.enabled"),
		},
		Storage: ObjectStorageConfig{
			Provider:  viper.GetString("storage.provider"),
			Endpoint:  viper.GetString("storage.endpoint"),
			AccessKey: viper.GetString("storage.access_key"),
			SecretKey: viper.GetString("storage.secret_key"),
			Bucket:    viper.GetString("storage.bucket"),
			UseSSL:    viper.GetBool("storage.use_ssl"),
		},
	}

	return nil
}

// GetAppConfig 获取全局配置
func GetAppConfig() *Config {
	return AppConfig
}
