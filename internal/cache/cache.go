package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/AndreF343/Warhammer40K-The-Librarian/config"
)

// =============================================================================
// 💾 缓存管理器
// =============================================================================

// Manager Redis 缓存管理器。查询向量是主要缓存对象：
// 相同问题的重复提问不必重复付费嵌入。
type Manager struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
}

// NewManager 创建缓存管理器.
func NewManager(cfg config.RedisConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.DefaultTTL
	if ttl == 0 {
		ttl = 10 * time.Minute
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Manager{
		client: client,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "cache")),
	}
}

// queryVectorKey 由问题文本派生稳定键。
func queryVectorKey(model, query string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + query))
	return "librarian:qvec:" + hex.EncodeToString(sum[:16])
}

// GetQueryVector 读取缓存的查询向量。未命中返回 (nil, nil)。
func (m *Manager) GetQueryVector(ctx context.Context, model, query string) ([]float64, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, fmt.Errorf("cache is closed")
	}
	m.mu.RUnlock()

	raw, err := m.client.Get(ctx, queryVectorKey(model, query)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var vec []float64
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		// 损坏的条目当作未命中，下一次写入会覆盖。
		m.logger.Warn("corrupt cached vector discarded", zap.Error(err))
		return nil, nil
	}
	return vec, nil
}

// SetQueryVector 缓存查询向量。
func (m *Manager) SetQueryVector(ctx context.Context, model, query string, vec []float64) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("cache is closed")
	}
	m.mu.RUnlock()

	raw, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	return m.client.Set(ctx, queryVectorKey(model, query), string(raw), m.ttl).Err()
}

// answerKey 由问题文本派生稳定键。
func answerKey(question string) string {
	sum := sha256.Sum256([]byte(question))
	return "librarian:ans:" + hex.EncodeToString(sum[:16])
}

// GetAnswer 读取缓存的回答 JSON。未命中返回 ("", nil)。
func (m *Manager) GetAnswer(ctx context.Context, question string) (string, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return "", fmt.Errorf("cache is closed")
	}
	m.mu.RUnlock()

	raw, err := m.client.Get(ctx, answerKey(question)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return raw, nil
}

// SetAnswer 缓存回答 JSON。
func (m *Manager) SetAnswer(ctx context.Context, question, answerJSON string) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("cache is closed")
	}
	m.mu.RUnlock()

	return m.client.Set(ctx, answerKey(question), answerJSON, m.ttl).Err()
}

// Ping 探活.
func (m *Manager) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

// Close 关闭连接.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	return m.client.Close()
}
