package ingest

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer 分块专用分词器接口
type Tokenizer interface {
	CountTokens(text string) int
}

// TiktokenTokenizer 基于 tiktoken 编码的精确计数器。
// 编码数据在首次使用时惰性初始化；初始化失败则回退到启发式估算。
type TiktokenTokenizer struct {
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error
}

// NewTiktokenTokenizer 创建指定编码的分词器（如 "cl100k_base"）。
func NewTiktokenTokenizer(encoding string) *TiktokenTokenizer {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	return &TiktokenTokenizer{encoding: encoding}
}

func (t *TiktokenTokenizer) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// CountTokens 返回文本的 token 数。
func (t *TiktokenTokenizer) CountTokens(text string) int {
	if err := t.init(); err != nil {
		return estimateTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Name 返回分词器名称。
func (t *TiktokenTokenizer) Name() string {
	return fmt.Sprintf("tiktoken[%s]", t.encoding)
}

// EstimatorTokenizer 启发式估算器，用于测试和无编码数据的环境。
type EstimatorTokenizer struct{}

func (EstimatorTokenizer) CountTokens(text string) int {
	return estimateTokens(text)
}

// estimateTokens 估算 token 数：英文约 4 字符/token。
func estimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	est := n / 4
	if est == 0 {
		est = 1
	}
	return est
}
