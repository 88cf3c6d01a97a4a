// Copyright 2025-2026 The Librarian Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package index 实现双存储索引器：把一个文档从版本 N 原子推进到 N+1，
横跨关系库与向量库。

# 提交协议

两阶段写：先写入新版本的全部块行与向量点（此时对检索不可见），
再在单个事务内翻转 documents.version 指针，最后异步回收退役版本。
任一阶段失败即回滚已写入的新版本行，旧版本保持活动，
调用方收到 INDEX_COMMIT 级错误。

# 并发

同一文档的并发重摄取按 document_id 串行化（至多一个在途索引），
不同文档完全并行。指针翻转事务不跨越任何网络调用。
*/
package index
