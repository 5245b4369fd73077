// Copyright (c) 2025 wangke <464829928@qq.com>
//
// This software is released under the AGPL-3.0 license.
// For more details, see the LICENSE file in the root directory.

package neckar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// graphQLRequest 是 GraphQL 请求的 JSON 结构
type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// GraphQLError 是服务端 errors 数组中的单个条目
type GraphQLError struct {
	Message string `json:"message"`
}

func (e GraphQLError) Error() string {
	return e.Message
}

// GraphQLErrors 聚合一次执行返回的全部 GraphQL 错误
type GraphQLErrors []GraphQLError

func (es GraphQLErrors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Message
	}
	return "graphql: " + strings.Join(msgs, "; ")
}

// graphQLResponse 是 GraphQL 响应的 JSON 结构
type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors GraphQLErrors   `json:"errors"`
}

// Query 执行一个 GraphQL 查询并将 data 解码到 out（out 为 nil 时丢弃结果）。
func (c *Client) Query(ctx context.Context, query string, variables map[string]any, out any) error {
	return c.execute(ctx, query, variables, out)
}

// Mutate 执行一个 GraphQL 变更。与 Query 的区别只在语义上。
func (c *Client) Mutate(ctx context.Context, mutation string, variables map[string]any, out any) error {
	return c.execute(ctx, mutation, variables, out)
}

// execute 携带当前令牌和身份头部向平台的 /graphql 端点提交请求。
// 服务端返回 errors 数组时整个调用视为失败。
func (c *Client) execute(ctx context.Context, query string, variables map[string]any, out any) error {
	payload, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("编码 GraphQL 请求失败: %w", err)
	}

	headers, err := c.authHeaders(ctx)
	if err != nil {
		return err
	}
	headers["Content-Type"] = "application/json"

	url := strings.TrimSuffix(c.cfg.Neckar.URL, "/") + "/graphql"
	status, body, err := c.caller.Do(ctx, http.MethodPost, url, headers, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("GraphQL 请求失败: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("GraphQL 请求返回 %d: %s", status, body)
	}

	var resp graphQLResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("解析 GraphQL 响应失败: %w", err)
	}
	if len(resp.Errors) > 0 {
		return resp.Errors
	}

	if out != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return fmt.Errorf("解码 GraphQL data 失败: %w", err)
		}
	}
	return nil
}
