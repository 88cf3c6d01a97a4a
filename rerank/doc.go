// Copyright 2025-2026 The Librarian Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package rerank 提供交叉编码器式的候选重排。

Provider 是统一接口，JinaProvider 是 REST 实现。重排是检索链路的
可选增强：提供者缺席或调用失败时按融合分序直接返回，属于优雅降级
而非错误。
*/
package rerank
