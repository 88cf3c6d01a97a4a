// Copyright 2025-2026 The Librarian Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package types 定义 Librarian 全局共享的数据模型与错误类型。

数据模型覆盖文档摄取与检索两条链路：Document（版本化的百科文档）、
Section（保留标题层级的章节）、Chunk（检索单元）、Embedding（向量）、
RetrievalResult（带来源的打分结果）、Citation（引用）与 Answer（最终回答）。

# 核心类型

  - Document / Section / Chunk — 摄取链路的层级数据模型
  - Embedding — 单个 Chunk 的定长向量，携带嵌入模型标识
  - RetrievalResult / RetrievalSource — 检索结果及其来源（lexical/vector/graph）
  - Citation / Answer / Outcome — 回答链路的输出模型
  - Error / ErrorCode — 统一结构化错误（含可重试标记与错误链）

# 错误语义

错误码与 spec 的错误分类一一对应：坏文档跳过（MALFORMED_INPUT）、
嵌入服务失败（EMBEDDING_PROVIDER）、双存储提交失败（INDEX_COMMIT）、
检索源超时降级（RETRIEVAL_TIMEOUT）、拒答（INSUFFICIENT_EVIDENCE）
与工具调用预算耗尽（TOOL_BUDGET_EXCEEDED）。
*/
package types
