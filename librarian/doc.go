// Copyright 2025-2026 The Librarian Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package librarian 提供面向调用方的服务门面。

# 概述

Service 把摄取流水线（归一化 → 幂等检查 → 分块 → 嵌入 → 双存储
提交）和问答流程（代理循环）收拢为两个入口：Ingest / IngestBatch
与 Answer。

摄取失败以 IngestAck 的 error 状态与携带错误码的 error 一并返回，
批量摄取中单篇失败不中断其余文档。问答路径上除输入校验与取消外
的内部异常一律降级为拒答，绝不把原始错误抛给调用方。

CachedQueryEmbedder 在查询嵌入前查 Redis 缓存，未命中或缓存
不可用时透传给真正的嵌入生成器。
*/
package librarian
