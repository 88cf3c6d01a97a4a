// Copyright 2025-2026 The Librarian Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package database 提供基于 GORM 的关系库连接管理。

# 概述

Open 按配置选择驱动（生产环境 postgres，测试与本地模式 glebarez/sqlite
纯 Go 驱动），PoolManager 封装连接池调优、后台健康检查与短事务执行。
版本指针翻转（文档新版本激活）依赖 WithTransaction 提供的事务边界。

# 核心类型

  - PoolManager：连接池管理器，提供 DB()、Ping()、Stats()、Close()
    与 WithTransaction()。
  - PoolConfig：最大连接数、空闲回收与健康检查间隔。
*/
package database
