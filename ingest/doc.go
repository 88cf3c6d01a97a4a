// Copyright 2025-2026 The Librarian Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package ingest 实现摄取链路的前两级：文档归一化与分块。

Normalizer 把一张原始 wiki 标记页面（标题、正文标记、可选 infobox 键值块）
转换为带清洗章节的 Document 和扁平元数据映射；Chunker 把章节切分为
带稳定标识和章节出处的检索单元。

# 核心类型

  - Normalizer — wiki 标记 → Document（章节 + 元数据 + 分类标签）
  - Chunker — 章节 → 有序 Chunk（句子贪心累积，token 预算，有界重叠）
  - Tokenizer — 分块专用计数接口（tiktoken 实现 + 启发式估算回退）

# 关键不变量

  - 按位置顺序拼接全部 Section.Text 可还原清洗正文（round-trip）。
  - 除显式标记 Oversized 的单句超长块外，所有块 token 数 ≤ max_chunk_size。
  - 相邻块重叠有界：重复前一块尾部至多 overlap 预算的句子，绝不产生全量重复块。

# 错误语义

正文无法解析出至少一个章节时返回 MALFORMED_INPUT，调用方跳过并记录该文档，
绝不因此中止整个批次。
*/
package ingest
