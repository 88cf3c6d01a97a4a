// Copyright 2025-2026 The Librarian Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package agent 实现有据回答代理：一个显式状态机驱动的检索-校验-作答循环。

# 状态机

	Start → ToolSelection → ToolExecution → EvidenceCheck → {Answering | Refusing} → Done

工具次序固定：首个工具调用必须是混合检索（词法 + 向量）；
结构化的 graph 查询只允许在至少一次检索返回结果之后执行，
代理不可能在查验非结构化证据前凭结构化数据编造答案。

# 有据约束

EvidenceCheck 检查累积证据集：没有任何块的相关性超过阈值时转入
Refusing 并输出固定拒答文案，绝不编造。Answering 产出的引用只指向
本轮循环中实际检索到的块。工具调用总数有预算上限，超出即强制拒答。

# 取消

整个循环在任意两个状态之间都可被打断（查询超时），绝不返回部分答案，
中断的结局是独立的 cancelled，不是答案。
*/
package agent
