package utils

import (
	"time"

	"github.com/google/uuid"
)

// GenerateID 生成基于时间戳的ID，用于临时文件名
func GenerateID() int64 {
	return time.Now().UnixNano()
}

// NewRequestID 生成请求ID
func NewRequestID() string {
	return uuid.NewString()
}
