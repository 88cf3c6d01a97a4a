// Copyright 2025-2026 The Librarian Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package store 提供双存储后端：GORM 关系库（documents / chunks 表）
与向量库（VectorStore 接口，Qdrant REST 实现 + 内存实现）。

# 核心类型

  - RelationalStore — 文档与块的持久化、活动版本查询、词法检索、
    结构化（分类/infobox）检索与章节邻居查询
  - VectorStore — 向量点的写入、检索与删除（按 chunk_id + version 定位）
  - QdrantStore — Qdrant REST 后端，点 ID 由 chunk_id@version 派生的稳定 UUID
  - MemoryVectorStore — 余弦相似度内存实现，测试与本地模式用

# 持久化不变量

chunks / vectors 行对总是共享相同的 version 与 document_id；
检索只读取 version == documents.version 的行。版本行只增不改，
旧版本由索引器翻转指针后异步删除。
*/
package store
