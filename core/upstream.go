package core

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// VideoAPIClient 视频元数据 provider 的 HTTP 客户端
// 实现 UpstreamInvoker：一次 Invoke 对应一次计费调用
// 失败的记录与分类由调度器负责，客户端本身不写日志
type VideoAPIClient struct {
	baseURL string
	client  *http.Client
}

// NewVideoAPIClient 创建上游客户端
// 全局超时禁用，由每次请求的 Context 控制
func NewVideoAPIClient(baseURL string) *VideoAPIClient {
	return &VideoAPIClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client: &http.Client{
			Timeout: 0,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   20,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
	}
}

// Invoke 执行一次上游操作，凭证作为 key 查询参数传递
func (c *VideoAPIClient) Invoke(ctx context.Context, credential, operation string, params map[string]string) ([]byte, error) {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	values.Set("key", credential)

	target := fmt.Sprintf("%s/%s?%s", c.baseURL, operation, values.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", operation, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Video-Gateway/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response for %s: %w", operation, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := string(body)
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Message: msg}
	}

	return body, nil
}
