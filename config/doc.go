// Copyright 2025-2026 The Librarian Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package config 提供 Librarian 的统一配置加载：默认值 → YAML 文件 → 环境变量。

所有调优旋钮（分块大小、重叠、各检索源融合权重、相关性阈值、工具调用预算、
各源超时）都是显式的、经校验的配置字段，在构造时注入，绝不读取环境全局。

# 使用方法

	cfg, err := config.NewLoader().
	    WithConfigPath("librarian.yaml").
	    WithEnvPrefix("LIBRARIAN").
	    Load()

# 配置优先级

默认值 → YAML 文件 → 环境变量。Load 末尾统一运行校验器，
非法配置（如权重为负、分块重叠不小于块大小）直接拒绝启动。
*/
package config
