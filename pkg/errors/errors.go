// Package errors 提供统一的错误定义
package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误 (1xxx)
	CodeSuccess            ErrorCode = "0"
	CodeUnknown            ErrorCode = "1000"
	CodeInvalidParam       ErrorCode = "1001"
	CodeUnauthorized       ErrorCode = "1002"
	CodeForbidden          ErrorCode = "1003"
	CodeNotFound           ErrorCode = "1004"
	CodeTooManyRequests    ErrorCode = "1006"
	CodeInternalError      ErrorCode = "1007"
	CodeServiceUnavailable ErrorCode = "1008"

	// 查询校验错误 (2xxx)
	CodeQueryEmpty   ErrorCode = "2001"
	CodeQueryTooLong ErrorCode = "2002"
	CodeScopeMissing ErrorCode = "2003"

	// 流水线业务错误 (4xxx)
	CodeClassifyFailed   ErrorCode = "4001"
	CodeRetrievalFailed  ErrorCode = "4002"
	CodeFusionFailed     ErrorCode = "4003"
	CodeGenerationFailed ErrorCode = "4004"
	CodePipelineTimeout  ErrorCode = "4005"
	CodeEmbeddingFailed  ErrorCode = "4006"

	// 外部服务错误 (5xxx)
	CodeDatabaseError     ErrorCode = "5001"
	CodeCacheError        ErrorCode = "5002"
	CodeVectorDBError     ErrorCode = "5003"
	CodeGraphStoreError   ErrorCode = "5004"
	CodeLLMProviderError  ErrorCode = "5005"
	CodeSourceUnavailable ErrorCode = "5006"
)

// AppError 应用错误
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Err        error     `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail 添加详细信息
func (e *AppError) WithDetail(detail string) *AppError {
	e.Detail = detail
	return e
}

// New 创建应用错误
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap 包装底层错误
func Wrap(code ErrorCode, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// 常用错误构造
var (
	// ErrQueryEmpty 查询内容为空
	ErrQueryEmpty = New(CodeQueryEmpty, "question text is empty", http.StatusBadRequest)
	// ErrQueryTooLong 查询内容超长
	ErrQueryTooLong = New(CodeQueryTooLong, "question text exceeds maximum length", http.StatusBadRequest)
	// ErrScopeMissing 租户范围缺失
	ErrScopeMissing = New(CodeScopeMissing, "tenant scope is required", http.StatusBadRequest)
)

// IsValidation 判断是否为输入校验错误（仅此类错误对调用方硬失败）
func IsValidation(err error) bool {
	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}
	switch appErr.Code {
	case CodeQueryEmpty, CodeQueryTooLong, CodeScopeMissing, CodeInvalidParam:
		return true
	}
	return false
}
