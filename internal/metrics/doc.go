// Copyright 2025-2026 The Librarian Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package metrics 提供 Prometheus 指标收集。

# 概述

Collector 覆盖四条路径：摄取（结局计数、块数、耗时）、嵌入
（调用结局、token 用量）、检索（来源耗时、降级计数）与回答
（结局计数、耗时、工具调用计数）。所有指标通过 promauto 注册
到传入的 Registerer，reg 为 nil 时用默认注册表。
*/
package metrics
