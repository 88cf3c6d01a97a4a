// Copyright 2025-2026 The Librarian Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package embedding 提供统一的嵌入提供者接口、OpenAI 兼容实现与批量生成器。

# 核心类型

  - Provider — 嵌入提供者接口（Embed / EmbedQuery / Dimensions / MaxBatchSize）
  - OpenAIProvider — OpenAI 兼容 REST 实现，HTTP 错误映射到结构化错误码
  - Generator — 批量嵌入生成器：按配置批大小切批、并发受限、限速、
    瞬时失败指数退避重试

# 契约

批内顺序保持：response[i] 对应 request[i]；提供者返回长度不匹配时
整批以 EMBEDDING_PROVIDER 级错误失败，绝不静默截断或填充。
重试耗尽后整批失败，已嵌入的部分进度不提交。
*/
package embedding
