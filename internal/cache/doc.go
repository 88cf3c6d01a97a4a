// Copyright 2025-2026 The Librarian Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package cache 提供基于 Redis 的查询向量与回答缓存。

# 概述

查询嵌入是检索路径上唯一需要付费的外呼。Manager 以
sha256(model + query) 为键缓存查询向量，以 sha256(question)
为键缓存独立问题的成功回答。缓存整体是可选组件：未启用或
不可达时两条路径照常工作，只是每次都重新计算。

损坏的缓存条目按未命中处理，不向调用方报错。
*/
package cache
