package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidInput 表示请求缺少必填字段或字段格式错误，调用方不应重试。
	ErrInvalidInput = errors.New("invalid input")
	// ErrStorageUnavailable 表示存储暂时不可用，调用方可以退避重试。
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrUnauthorized 表示管理类操作未通过鉴权。
	ErrUnauthorized = errors.New("unauthorized")
	// ErrPartialAggregation 表示聚合任务只完成了部分文章。
	ErrPartialAggregation = errors.New("partial aggregation failure")
)

func invalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func storageUnavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, op, err)
}

// PartialAggregationError 列出本轮聚合失败的文章。
type PartialAggregationError struct {
	Failed []FailedContent
}

func (e *PartialAggregationError) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		ids = append(ids, f.ContentID)
	}
	return fmt.Sprintf("%s: %d content id(s) failed: %s", ErrPartialAggregation, len(e.Failed), strings.Join(ids, ", "))
}

// Is 使 errors.Is(err, ErrPartialAggregation) 成立。
func (e *PartialAggregationError) Is(target error) bool {
	return target == ErrPartialAggregation
}
