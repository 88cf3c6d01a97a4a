package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/AndreF343/Warhammer40K-The-Librarian/types"
)

// lexicalCandidateCap 词法检索从库里预取的候选行上限，打分在进程内完成。
const lexicalCandidateCap = 256

// RelationalStore 基于 GORM 的文档/块存储。
type RelationalStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewRelationalStore 创建关系存储.
func NewRelationalStore(db *gorm.DB, logger *zap.Logger) *RelationalStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RelationalStore{
		db:     db,
		logger: logger.With(zap.String("component", "relational_store")),
	}
}

// Migrate 建表.
func (s *RelationalStore) Migrate() error {
	return s.db.AutoMigrate(&DocumentRow{}, &ChunkRow{})
}

// DB 暴露底层句柄，仅供索引器在事务内翻转版本指针使用。
func (s *RelationalStore) DB() *gorm.DB { return s.db }

// ActiveVersion 返回文档的活动版本号与内容哈希。
// 文档不存在时返回 (0, "", nil)。
func (s *RelationalStore) ActiveVersion(ctx context.Context, docID string) (int64, string, error) {
	var row DocumentRow
	err := s.db.WithContext(ctx).Select("version", "content_hash").First(&row, "id = ?", docID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", err
	}
	return row.Version, row.ContentHash, nil
}

// GetDocument 按 ID 读取文档元数据行。不存在时返回 (nil, nil)。
func (s *RelationalStore) GetDocument(ctx context.Context, docID string) (*types.Document, error) {
	var row DocumentRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", docID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rowToDoc(&row)
}

// InsertChunks 写入一个新版本的全部块行。
// 新版本行在指针翻转前对检索不可见，写入无需事务跨越嵌入调用。
func (s *RelationalStore) InsertChunks(ctx context.Context, chunks []types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	rows := make([]ChunkRow, 0, len(chunks))
	for _, c := range chunks {
		rows = append(rows, chunkToRow(c))
	}
	return s.db.WithContext(ctx).CreateInBatches(rows, 200).Error
}

// ActivateVersion 在事务内把文档的版本指针翻转到 doc.Version。
// 这是唯一让新版本对检索可见的写操作。
func (s *RelationalStore) ActivateVersion(ctx context.Context, doc *types.Document) error {
	row, err := docToRow(doc)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing DocumentRow
		err := tx.First(&existing, "id = ?", doc.ID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(row).Error
		case err != nil:
			return err
		default:
			return tx.Model(&DocumentRow{}).Where("id = ?", doc.ID).Updates(map[string]any{
				"title":           row.Title,
				"source_url":      row.SourceURL,
				"metadata_json":   row.MetadataJSON,
				"categories_json": row.CategoriesJSON,
				"version":         row.Version,
				"content_hash":    row.ContentHash,
				"ingested_at":     row.IngestedAt,
			}).Error
		}
	})
}

// DeleteChunkVersion 删除一个文档指定版本的全部块行（提交失败的回滚路径）。
func (s *RelationalStore) DeleteChunkVersion(ctx context.Context, docID string, version int64) error {
	return s.db.WithContext(ctx).
		Where("document_id = ? AND version = ?", docID, version).
		Delete(&ChunkRow{}).Error
}

// RetiredChunks 列出文档所有已退役版本的块引用，供向量库同步回收。
// 只匹配比活动版本更旧的行：更高的版本号属于在途提交，不得触碰。
func (s *RelationalStore) RetiredChunks(ctx context.Context, docID string, activeVersion int64) ([]ChunkRef, error) {
	var rows []ChunkRow
	err := s.db.WithContext(ctx).
		Select("id", "version").
		Where("document_id = ? AND version < ?", docID, activeVersion).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	refs := make([]ChunkRef, 0, len(rows))
	for _, r := range rows {
		refs = append(refs, ChunkRef{ChunkID: r.ID, Version: r.Version})
	}
	return refs, nil
}

// DeleteRetired 删除文档所有已退役版本的块行，同样不触碰在途的更高版本。
func (s *RelationalStore) DeleteRetired(ctx context.Context, docID string, activeVersion int64) error {
	return s.db.WithContext(ctx).
		Where("document_id = ? AND version < ?", docID, activeVersion).
		Delete(&ChunkRow{}).Error
}

// ActiveChunks 按引用解析块，只返回仍处于活动版本的行。
// 向量检索的命中经由此查询过滤掉已退役版本。
func (s *RelationalStore) ActiveChunks(ctx context.Context, refs []ChunkRef) ([]ScoredChunk, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	out := make([]ScoredChunk, 0, len(refs))
	for _, ref := range refs {
		var row ChunkRow
		err := s.db.WithContext(ctx).
			Joins("JOIN documents ON documents.id = chunks.document_id AND documents.version = chunks.version").
			Where("chunks.id = ? AND chunks.version = ?", ref.ChunkID, ref.Version).
			First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		ingestedAt, err := s.documentTime(ctx, row.DocumentID)
		if err != nil {
			return nil, err
		}
		out = append(out, ScoredChunk{Chunk: rowToChunk(row), IngestedAt: ingestedAt})
	}
	return out, nil
}

// LexicalSearch 对活动块做关键词检索。
// SQL 层用 LIKE 预筛候选，词频打分在进程内完成，postgres 与 sqlite 行为一致。
func (s *RelationalStore) LexicalSearch(ctx context.Context, query string, limit int) ([]ScoredChunk, error) {
	terms := lexicalTerms(query)
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}

	q := s.db.WithContext(ctx).Model(&ChunkRow{}).
		Joins("JOIN documents ON documents.id = chunks.document_id AND documents.version = chunks.version")
	conds := make([]string, 0, len(terms))
	args := make([]any, 0, len(terms))
	for _, t := range terms {
		conds = append(conds, "LOWER(chunks.text) LIKE ?")
		args = append(args, "%"+t+"%")
	}
	q = q.Where(strings.Join(conds, " OR "), args...)

	var rows []ChunkRow
	if err := q.Limit(lexicalCandidateCap).Find(&rows).Error; err != nil {
		return nil, err
	}

	hits := make([]ScoredChunk, 0, len(rows))
	for _, row := range rows {
		score := lexicalScore(row.Text, terms)
		if score <= 0 {
			continue
		}
		ingestedAt, err := s.documentTime(ctx, row.DocumentID)
		if err != nil {
			return nil, err
		}
		hits = append(hits, ScoredChunk{Chunk: rowToChunk(row), Score: score, IngestedAt: ingestedAt})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// GraphSearch 对分类标签与 infobox 元数据做精确匹配检索。
// 命中文档时返回其活动版本的首个块，分数恒为 1.0（精确匹配没有程度）。
func (s *RelationalStore) GraphSearch(ctx context.Context, key string, limit int) ([]ScoredChunk, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || limit <= 0 {
		return nil, nil
	}

	var docs []DocumentRow
	err := s.db.WithContext(ctx).
		Where("LOWER(categories_json) LIKE ? OR LOWER(metadata_json) LIKE ?", "%"+key+"%", "%"+key+"%").
		Limit(lexicalCandidateCap).
		Find(&docs).Error
	if err != nil {
		return nil, err
	}

	var hits []ScoredChunk
	for _, d := range docs {
		if !graphMatches(&d, key) {
			continue
		}
		var row ChunkRow
		err := s.db.WithContext(ctx).
			Where("document_id = ? AND version = ?", d.ID, d.Version).
			Order("section_idx ASC, chunk_idx ASC").
			First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		hits = append(hits, ScoredChunk{Chunk: rowToChunk(row), Score: 1.0, IngestedAt: d.IngestedAt})
		if len(hits) >= limit {
			break
		}
	}
	return hits, nil
}

// SectionNeighbors 返回同一文档同一章节内的前后相邻块（存在才返回）。
func (s *RelationalStore) SectionNeighbors(ctx context.Context, c types.Chunk) ([]types.Chunk, error) {
	var rows []ChunkRow
	err := s.db.WithContext(ctx).
		Where("document_id = ? AND version = ? AND section_idx = ? AND chunk_idx IN ?",
			c.DocumentID, c.Version, c.SectionIdx, []int{c.ChunkIdx - 1, c.ChunkIdx + 1}).
		Order("chunk_idx ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]types.Chunk, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToChunk(r))
	}
	return out, nil
}

// HealthCheck 探活.
func (s *RelationalStore) HealthCheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *RelationalStore) documentTime(ctx context.Context, docID string) (time.Time, error) {
	var row DocumentRow
	err := s.db.WithContext(ctx).Select("ingested_at").First(&row, "id = ?", docID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return row.IngestedAt, nil
}

// lexicalTerms 把查询切成小写检索词，去掉过短的噪声词。
func lexicalTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?'\"()[]")
		if len(f) < 2 {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}

// lexicalScore 词频打分：覆盖的查询词越多、出现越密集，分数越高。
// 绝对量纲无意义，融合前会做 min-max 归一化。
func lexicalScore(text string, terms []string) float64 {
	lower := strings.ToLower(text)
	length := float64(len(strings.Fields(lower)))
	if length == 0 {
		return 0
	}
	covered := 0
	tf := 0.0
	for _, t := range terms {
		n := strings.Count(lower, t)
		if n > 0 {
			covered++
			tf += float64(n)
		}
	}
	if covered == 0 {
		return 0
	}
	coverage := float64(covered) / float64(len(terms))
	return coverage * (1.0 + tf/length)
}

// graphMatches 精确验证：LIKE 预筛后的文档必须有完全相等的分类标签
// 或 infobox 值才算命中。
func graphMatches(d *DocumentRow, key string) bool {
	if d.CategoriesJSON != "" {
		var categories []string
		if json.Unmarshal([]byte(d.CategoriesJSON), &categories) == nil {
			for _, c := range categories {
				if strings.ToLower(c) == key {
					return true
				}
			}
		}
	}
	if d.MetadataJSON != "" {
		var metadata map[string]string
		if json.Unmarshal([]byte(d.MetadataJSON), &metadata) == nil {
			for _, v := range metadata {
				if strings.ToLower(strings.TrimSpace(v)) == key {
					return true
				}
			}
		}
	}
	return false
}
