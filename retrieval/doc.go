// Copyright 2025-2026 The Librarian Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package retrieval 实现混合检索与上下文扩展。

# 检索来源

  - lexical — 活动块上的关键词检索（关系库）
  - vector — 查询向量与块向量的余弦相似度（向量库）
  - graph — 分类标签 / infobox 元数据的精确匹配，命中即 1.0

三个来源并发执行；单个来源超时或出错降级为空结果，绝不让整个查询失败。

# 融合

各来源分数先做 min-max 归一化，再按配置权重加权求和；同一块被多个
来源命中时分数累加（非负权重下融合分单调不减于任一单源分数）。
平分时先按文档新近性、再按块位置裁决。融合后的 top-N 候选可选地交给
重排提供者产出最终 top-k，重排缺席或失败时按融合分序直接返回。
*/
package retrieval
