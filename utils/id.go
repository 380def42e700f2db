package utils

import (
	"strings"

	"github.com/google/uuid"
)

// NewMaskID 生成掩码ID（32位十六进制，122位随机）
func NewMaskID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewRequestID 生成请求ID
func NewRequestID() string {
	return uuid.NewString()
}
