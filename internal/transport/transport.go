// Copyright (c) 2025 wangke <464829928@qq.com>
//
// This software is released under the AGPL-3.0 license.
// For more details, see the LICENSE file in the root directory.

package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Caller 定义了执行一次字面网络调用的接口。
// 状态码原样返回，非 2xx 不视为传输错误，由调用方自行判定。
type Caller interface {
	Do(ctx context.Context, method, url string, headers map[string]string, body io.Reader) (status int, respBody []byte, err error)
}

// HTTPCaller 是基于 net/http 的 Caller 实现。
type HTTPCaller struct {
	client *http.Client
}

// NewHTTPCaller 创建一个带超时的 HTTP 调用器。timeout <= 0 时不设置超时。
func NewHTTPCaller(timeout time.Duration) *HTTPCaller {
	return &HTTPCaller{
		client: &http.Client{Timeout: timeout},
	}
}

// Do 执行一次 HTTP 调用并返回状态码和完整响应体。
// 每个出站请求都会携带一个 X-Request-ID，便于与服务端日志对账。
func (hc *HTTPCaller) Do(ctx context.Context, method, url string, headers map[string]string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, fmt.Errorf("构造请求失败: %w", err)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	// 如果调用方没有指定请求 ID，则生成一个新的
	requestID := req.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.New().String()
		req.Header.Set("X-Request-ID", requestID)
	}

	start := time.Now()
	resp, err := hc.client.Do(req)
	if err != nil {
		slog.Debug("http call failed",
			"method", method,
			"url", url,
			"request_id", requestID,
			"error", err,
		)
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	// 记录结构化日志
	slog.Debug("http call",
		"method", method,
		"url", url,
		"status", resp.StatusCode,
		"duration", time.Since(start),
		"request_id", requestID,
	)

	return resp.StatusCode, respBody, nil
}
