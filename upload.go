// Copyright (c) 2025 wangke <464829928@qq.com>
//
// This software is released under the AGPL-3.0 license.
// For more details, see the LICENSE file in the root directory.

package neckar

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
)

// 两阶段上传使用的变更。create 返回文件 ID 和一个预签名的上传地址，
// 字节写入该地址后再 confirm 使文件对平台可见。
const (
	createUploadMutation = `mutation CreateFileUpload($name: String!, $size: Int!) {
  createFileUpload(name: $name, size: $size) {
    id
    url
  }
}`

	confirmUploadMutation = `mutation ConfirmFileUpload($id: ID!) {
  confirmFileUpload(id: $id) {
    id
  }
}`
)

// UploadFile 执行两阶段文件上传：创建、写入字节、确认。
// 任一阶段失败时中止整个序列并返回底层错误；已创建但未确认的
// 上传由平台侧的回收机制负责清理。
func (c *Client) UploadFile(ctx context.Context, name string, content []byte) (string, error) {
	// 阶段一：向平台登记上传，取得文件 ID 和上传地址
	var created struct {
		CreateFileUpload struct {
			ID  string `json:"id"`
			URL string `json:"url"`
		} `json:"createFileUpload"`
	}
	err := c.Mutate(ctx, createUploadMutation, map[string]any{
		"name": name,
		"size": len(content),
	}, &created)
	if err != nil {
		return "", fmt.Errorf("创建上传失败: %w", err)
	}
	if created.CreateFileUpload.ID == "" || created.CreateFileUpload.URL == "" {
		return "", fmt.Errorf("创建上传的响应不完整")
	}

	// 阶段二：把文件内容写入上传地址
	headers := map[string]string{
		"Content-Type": "application/octet-stream",
	}
	status, body, err := c.caller.Do(ctx, http.MethodPut, created.CreateFileUpload.URL, headers, bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("写入文件内容失败: %w", err)
	}
	if status < 200 || status >= 300 {
		return "", fmt.Errorf("写入文件内容返回 %d: %s", status, body)
	}

	// 阶段三：确认上传完成
	err = c.Mutate(ctx, confirmUploadMutation, map[string]any{
		"id": created.CreateFileUpload.ID,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("确认上传失败: %w", err)
	}

	return created.CreateFileUpload.ID, nil
}
