package service

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// IPHasher 在持久化之前把客户端 IP 转换为不可逆的摘要。
type IPHasher interface {
	Hash(ip string) string
}

// SHA256Hasher 输出 64 位十六进制的 SHA-256 摘要，可选前置盐值。
type SHA256Hasher struct {
	salt string
}

// NewSHA256Hasher 创建哈希器，salt 为空时与无盐 SHA-256 结果一致。
func NewSHA256Hasher(salt string) SHA256Hasher {
	return SHA256Hasher{salt: salt}
}

// Hash 返回 IP 的摘要，空输入返回空串。
func (h SHA256Hasher) Hash(ip string) string {
	trimmed := strings.TrimSpace(ip)
	if trimmed == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(h.salt + trimmed))
	return hex.EncodeToString(sum[:])
}
