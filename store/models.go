package store

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/AndreF343/Warhammer40K-The-Librarian/types"
)

// sectionPathSeparator 章节路径在关系库中的序列化分隔符。
const sectionPathSeparator = " > "

// DocumentRow documents 表：每文档一行，Version 是活动版本指针。
type DocumentRow struct {
	ID             string `gorm:"primaryKey;size:128"`
	Title          string `gorm:"size:512"`
	SourceURL      string `gorm:"size:1024"`
	MetadataJSON   string `gorm:"type:text"`
	CategoriesJSON string `gorm:"type:text"`
	Version        int64  `gorm:"index"`
	ContentHash    string `gorm:"size:64;index"`
	IngestedAt     time.Time
}

func (DocumentRow) TableName() string { return "documents" }

// ChunkRow chunks 表：主键为 (id, version)，同一块的新旧版本并存，
// 直到旧版本被异步回收。
type ChunkRow struct {
	ID          string `gorm:"primaryKey;size:192"`
	Version     int64  `gorm:"primaryKey"`
	DocumentID  string `gorm:"index;size:128"`
	SectionPath string `gorm:"size:1024"`
	SectionIdx  int
	ChunkIdx    int
	Text        string `gorm:"type:text"`
	TokenCount  int
	Oversized   bool
}

func (ChunkRow) TableName() string { return "chunks" }

// ChunkRef 以 (chunk_id, version) 定位一个持久化的块，
// 关系行与向量点共用同一引用。
type ChunkRef struct {
	ChunkID string
	Version int64
}

// ScoredChunk 带来源分数与文档时间的检索命中。
type ScoredChunk struct {
	Chunk      types.Chunk
	Score      float64
	IngestedAt time.Time
}

func docToRow(doc *types.Document) (*DocumentRow, error) {
	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return nil, err
	}
	categories, err := json.Marshal(doc.Categories)
	if err != nil {
		return nil, err
	}
	return &DocumentRow{
		ID:             doc.ID,
		Title:          doc.Title,
		SourceURL:      doc.SourceURL,
		MetadataJSON:   string(metadata),
		CategoriesJSON: string(categories),
		Version:        doc.Version,
		ContentHash:    doc.ContentHash,
		IngestedAt:     doc.IngestedAt,
	}, nil
}

func rowToDoc(row *DocumentRow) (*types.Document, error) {
	doc := &types.Document{
		ID:          row.ID,
		Title:       row.Title,
		SourceURL:   row.SourceURL,
		Version:     row.Version,
		ContentHash: row.ContentHash,
		IngestedAt:  row.IngestedAt,
	}
	if row.MetadataJSON != "" {
		if err := json.Unmarshal([]byte(row.MetadataJSON), &doc.Metadata); err != nil {
			return nil, err
		}
	}
	if row.CategoriesJSON != "" {
		if err := json.Unmarshal([]byte(row.CategoriesJSON), &doc.Categories); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func chunkToRow(c types.Chunk) ChunkRow {
	return ChunkRow{
		ID:          c.ID,
		Version:     c.Version,
		DocumentID:  c.DocumentID,
		SectionPath: strings.Join(c.SectionPath, sectionPathSeparator),
		SectionIdx:  c.SectionIdx,
		ChunkIdx:    c.ChunkIdx,
		Text:        c.Text,
		TokenCount:  c.TokenCount,
		Oversized:   c.Oversized,
	}
}

func rowToChunk(row ChunkRow) types.Chunk {
	var path []string
	if row.SectionPath != "" {
		path = strings.Split(row.SectionPath, sectionPathSeparator)
	}
	return types.Chunk{
		ID:          row.ID,
		Version:     row.Version,
		DocumentID:  row.DocumentID,
		SectionPath: path,
		SectionIdx:  row.SectionIdx,
		ChunkIdx:    row.ChunkIdx,
		Text:        row.Text,
		TokenCount:  row.TokenCount,
		Oversized:   row.Oversized,
	}
}
