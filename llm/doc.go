// Copyright 2025-2026 The Librarian Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package llm 提供回答合成用的对话模型接口与 OpenAI 兼容实现。

回答代理只通过 Provider 接口说话；证据约束（只依据检索到的块作答）
由 agent 包的提示词与状态机保证，本包只负责传输。
*/
package llm
