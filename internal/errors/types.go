package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误
	ErrCodeInternalServer ErrorCode = "INTERNAL_SERVER_ERROR"
	ErrCodeBadRequest     ErrorCode = "BAD_REQUEST"
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"

	// 验证错误
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"

	// 管道阶段错误
	ErrCodeChunkingFailed     ErrorCode = "CHUNKING_FAILED"
	ErrCodeEmbeddingService   ErrorCode = "EMBEDDING_SERVICE_ERROR"
	ErrCodeGenerationService  ErrorCode = "GENERATION_SERVICE_ERROR"
	ErrCodeIndexUnavailable   ErrorCode = "INDEX_UNAVAILABLE"
	ErrCodeResourceNotFound   ErrorCode = "RESOURCE_NOT_FOUND"
	ErrCodeTimeout            ErrorCode = "TIMEOUT"
	ErrCodeInvalidFileFormat  ErrorCode = "INVALID_FILE_FORMAT"
	ErrCodeExtractionFailed   ErrorCode = "EXTRACTION_FAILED"
)

// ErrorType 错误类型
type ErrorType int

const (
	ErrorTypeSystem ErrorType = iota
	ErrorTypeBusiness
	ErrorTypeValidation
	ErrorTypeExternal
)

// AppError 应用错误结构体
type AppError struct {
	Code     ErrorCode   `json:"code"`
	Message  string      `json:"message"`
	Type     ErrorType   `json:"type"`
	HTTPCode int         `json:"-"`
	Details  interface{} `json:"details,omitempty"`
	Cause    error       `json:"-"`
	// Stage 记录出错的管道阶段，便于调用方定位和重试
	Stage string `json:"stage,omitempty"`
	// DocumentID 关联的文档（摄取路径出错时填写）
	DocumentID string `json:"document_id,omitempty"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithCause 添加错误原因
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithStage 记录管道阶段
func (e *AppError) WithStage(stage string) *AppError {
	e.Stage = stage
	return e
}

// WithDocument 记录关联文档ID
func (e *AppError) WithDocument(documentID string) *AppError {
	e.DocumentID = documentID
	return e
}

// WithDetails 添加错误详情
func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// 错误构造函数

// NewChunkingError 创建分块错误（输入为空或格式异常）
func NewChunkingError(message string) *AppError {
	return &AppError{
		Code:     ErrCodeChunkingFailed,
		Message:  message,
		Type:     ErrorTypeValidation,
		HTTPCode: http.StatusBadRequest,
	}
}

// NewEmbeddingServiceError 创建向量化服务错误
func NewEmbeddingServiceError(message string) *AppError {
	return &AppError{
		Code:     ErrCodeEmbeddingService,
		Message:  message,
		Type:     ErrorTypeExternal,
		HTTPCode: http.StatusBadGateway,
	}
}

// NewGenerationServiceError 创建文本生成服务错误
func NewGenerationServiceError(message string) *AppError {
	return &AppError{
		Code:     ErrCodeGenerationService,
		Message:  message,
		Type:     ErrorTypeExternal,
		HTTPCode: http.StatusBadGateway,
	}
}

// NewIndexUnavailableError 创建向量索引不可用错误
func NewIndexUnavailableError(message string) *AppError {
	return &AppError{
		Code:     ErrCodeIndexUnavailable,
		Message:  message,
		Type:     ErrorTypeExternal,
		HTTPCode: http.StatusServiceUnavailable,
	}
}

// NewTimeoutError 创建外部调用超时错误
func NewTimeoutError(stage string) *AppError {
	return &AppError{
		Code:     ErrCodeTimeout,
		Message:  fmt.Sprintf("%s call timed out", stage),
		Type:     ErrorTypeExternal,
		HTTPCode: http.StatusGatewayTimeout,
		Stage:    stage,
	}
}

// NewNotFoundError 创建资源未找到错误
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:     ErrCodeResourceNotFound,
		Message:  fmt.Sprintf("%s not found", resource),
		Type:     ErrorTypeBusiness,
		HTTPCode: http.StatusNotFound,
	}
}

// NewValidationError 创建验证错误
func NewValidationError(message string) *AppError {
	return &AppError{
		Code:     ErrCodeValidationFailed,
		Message:  message,
		Type:     ErrorTypeValidation,
		HTTPCode: http.StatusBadRequest,
	}
}

// NewInvalidFileFormatError 创建文件格式错误
func NewInvalidFileFormatError(filename string) *AppError {
	return &AppError{
		Code:     ErrCodeInvalidFileFormat,
		Message:  fmt.Sprintf("unsupported file format: %s", filename),
		Type:     ErrorTypeValidation,
		HTTPCode: http.StatusBadRequest,
	}
}

// NewExtractionError 创建文本提取错误
func NewExtractionError(message string) *AppError {
	return &AppError{
		Code:     ErrCodeExtractionFailed,
		Message:  message,
		Type:     ErrorTypeBusiness,
		HTTPCode: http.StatusUnprocessableEntity,
	}
}

// NewSystemError 创建系统错误
func NewSystemError(message string) *AppError {
	return &AppError{
		Code:     ErrCodeInternalServer,
		Message:  message,
		Type:     ErrorTypeSystem,
		HTTPCode: http.StatusInternalServerError,
	}
}

// IsAppError 检查是否为AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError 获取AppError，如果不是则包装为系统错误
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewSystemError("Internal server error").WithCause(err)
}

// HasCode 检查错误链中是否包含指定错误码
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
