/**
 * 工具类:API密钥工具
 * @author: sun977
 * @date: 2025.08.29
 * @description: CI 调用索引接口使用的API密钥，配置文件中只保存 argon2id 哈希
 * @func:
 * 	1.生成密钥
 * 	2.哈希密钥
 * 	3.校验密钥
 */
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2" // 引入Argon2id算法
)

// KeyHashConfig 密钥哈希配置
type KeyHashConfig struct {
	Memory      uint32 // 内存使用量 (KB)
	Iterations  uint32 // 迭代次数
	Parallelism uint8  // 并行度
	SaltLength  uint32 // 盐长度
	KeyLength   uint32 // 密钥长度
}

// DefaultKeyHashConfig 默认哈希配置
var DefaultKeyHashConfig = &KeyHashConfig{
	Memory:      64 * 1024, // 64MB
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// KeyHasher 密钥哈希器
type KeyHasher struct {
	config *KeyHashConfig
}

// NewKeyHasher 创建密钥哈希器
func NewKeyHasher(config *KeyHashConfig) *KeyHasher {
	if config == nil {
		config = DefaultKeyHashConfig
	}
	return &KeyHasher{
		config: config,
	}
}

// Hash 哈希密钥
func (pm *KeyHasher) Hash(key string) (string, error) {
	if key == "" {
		return "", errors.New("key cannot be empty")
	}

	// 生成随机盐
	salt, err := generateRandomBytes(pm.config.SaltLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	// 使用Argon2id算法哈希
	hash := argon2.IDKey(
		[]byte(key),
		salt,
		pm.config.Iterations,
		pm.config.Memory,
		pm.config.Parallelism,
		pm.config.KeyLength,
	)

	// 编码为base64字符串
	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	// 格式: $argon2id$v=19$m=65536,t=3,p=2$salt$hash
	encodedHash := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		pm.config.Memory,
		pm.config.Iterations,
		pm.config.Parallelism,
		b64Salt,
		b64Hash,
	)

	return encodedHash, nil
}

// Verify 校验密钥与哈希是否匹配
func (pm *KeyHasher) Verify(key, encodedHash string) (bool, error) {
	if key == "" || encodedHash == "" {
		return false, errors.New("key and hash cannot be empty")
	}

	// 解析哈希字符串
	config, salt, hash, err := pm.decodeHash(encodedHash)
	if err != nil {
		return false, fmt.Errorf("failed to decode hash: %w", err)
	}

	// 使用相同参数哈希输入密钥
	otherHash := argon2.IDKey(
		[]byte(key),
		salt,
		config.Iterations,
		config.Memory,
		config.Parallelism,
		config.KeyLength,
	)

	// 使用常量时间比较防止时序攻击
	return subtle.ConstantTimeCompare(hash, otherHash) == 1, nil
}

// decodeHash 解码哈希字符串
func (pm *KeyHasher) decodeHash(encodedHash string) (*KeyHashConfig, []byte, []byte, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return nil, nil, nil, errors.New("invalid hash format")
	}

	// 检查算法
	if parts[1] != "argon2id" {
		return nil, nil, nil, errors.New("unsupported algorithm")
	}

	// 解析版本
	var version int
	_, err := fmt.Sscanf(parts[2], "v=%d", &version)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid version: %w", err)
	}
	if version != argon2.Version {
		return nil, nil, nil, errors.New("incompatible version")
	}

	// 解析参数
	config := &KeyHashConfig{}
	_, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &config.Memory, &config.Iterations, &config.Parallelism)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid parameters: %w", err)
	}

	// 解码盐
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid salt: %w", err)
	}
	config.SaltLength = uint32(len(salt))

	// 解码哈希
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid hash: %w", err)
	}
	config.KeyLength = uint32(len(hash))

	return config, salt, hash, nil
}

// generateRandomBytes 生成随机字节
func generateRandomBytes(n uint32) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// GenerateKey 生成随机API密钥(32字节，URL安全的base64)
func GenerateKey() (string, error) {
	b, err := generateRandomBytes(32)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// APIKeyVerifier 使用配置中的哈希列表校验API密钥
type APIKeyVerifier struct {
	hasher *KeyHasher
	hashes []string
}

// NewAPIKeyVerifier 创建API密钥校验器
func NewAPIKeyVerifier(hashes []string) *APIKeyVerifier {
	return &APIKeyVerifier{hasher: NewKeyHasher(nil), hashes: hashes}
}

// Enabled 是否配置了API密钥
func (v *APIKeyVerifier) Enabled() bool {
	return v != nil && len(v.hashes) > 0
}

// Verify 与任一哈希匹配即通过，格式错误的哈希被忽略
func (v *APIKeyVerifier) Verify(key string) bool {
	if !v.Enabled() || key == "" {
		return false
	}
	for _, hash := range v.hashes {
		if ok, err := v.hasher.Verify(key, hash); err == nil && ok {
			return true
		}
	}
	return false
}
