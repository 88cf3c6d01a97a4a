// Copyright 2025-2026 The Librarian Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package server 提供 HTTP 服务器生命周期管理。

# 概述

Manager 封装 net/http.Server 的启动、异步错误收集与优雅关闭。
Start 非阻塞，WaitForShutdown 阻塞等待 SIGINT/SIGTERM 或服务器
异常退出，随后在 ShutdownTimeout 内排空在途请求。
*/
package server
