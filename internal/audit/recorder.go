package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/aihub/policyqa-go/internal/logger"
)

// 审计事件类型
const (
	EventDocumentIngested = "document_ingested"
	EventDocumentDeleted  = "document_deleted"
	EventQueryAnswered    = "query_answered"
	EventQueryFailed      = "query_failed"
	EventIngestFailed     = "ingest_failed"
	EventFeedback         = "user_feedback"
)

// Event 审计事件，只追加，写入后不再变更
type Event struct {
	Type      string                 `json:"type"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp time.Time              `json:"timestamp"`
}

// Recorder 审计事件记录接口
type Recorder interface {
	// Record 记录一条事件。记录失败不应阻断业务主流程，由调用方决定是否忽略错误。
	Record(event Event) error
	// Close 释放底层资源
	Close() error
}

// KafkaRecorder 基于Kafka的审计记录器
type KafkaRecorder struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaRecorder 创建Kafka审计记录器
func NewKafkaRecorder(brokers []string, topic string) (*KafkaRecorder, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	if topic == "" {
		topic = "policyqa-audit"
	}

	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Timeout = 10 * time.Second

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("创建Kafka生产者失败: %w", err)
	}

	logger.Info("audit recorder initialized",
		zap.Strings("brokers", brokers), zap.String("topic", topic))
	return &KafkaRecorder{producer: producer, topic: topic}, nil
}

// Record 发送事件到Kafka，按事件类型作为分区键
func (r *KafkaRecorder) Record(event Event) error {
	if r == nil || r.producer == nil {
		return fmt.Errorf("audit recorder not initialized")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: r.topic,
		Key:   sarama.StringEncoder(event.Type),
		Value: sarama.ByteEncoder(data),
	}

	partition, offset, err := r.producer.SendMessage(msg)
	if err != nil {
		logger.Error("发送审计事件失败", zap.String("type", event.Type), zap.Error(err))
		return fmt.Errorf("发送事件失败: %w", err)
	}

	logger.Debug("审计事件已记录",
		zap.String("type", event.Type),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

// Close 关闭生产者
func (r *KafkaRecorder) Close() error {
	if r != nil && r.producer != nil {
		return r.producer.Close()
	}
	return nil
}

// LogRecorder Kafka未配置时的降级记录器，事件只写日志
type LogRecorder struct{}

// NewLogRecorder 创建日志审计记录器
func NewLogRecorder() *LogRecorder {
	return &LogRecorder{}
}

func (r *LogRecorder) Record(event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	logger.Info("audit event",
		zap.String("type", event.Type),
		zap.Any("payload", event.Payload),
		zap.Time("timestamp", event.Timestamp))
	return nil
}

func (r *LogRecorder) Close() error {
	return nil
}

// NewEvent 构造带当前时间戳的事件
func NewEvent(eventType string, payload map[string]interface{}) Event {
	return Event{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}
