// Package tapo 实现 Tapo 智能插座本地 KLAP 协议：两段握手、AES 会话加密，
// 以及 get_energy_usage / get_device_info 两个只读方法。
package tapo

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	// DefaultConnectTimeout 握手超时，避免挂死的设备阻塞调用方
	DefaultConnectTimeout = 10 * time.Second
	// DefaultRequestTimeout 单次请求超时
	DefaultRequestTimeout = 10 * time.Second

	sessionCookie   = "TP_SESSIONID"
	maxResponseSize = 1 << 20
)

// Client 单台设备的协议客户端，只负责建立会话，不做重试
type Client struct {
	baseURL        string
	username       string
	password       string
	httpClient     *http.Client
	connectTimeout time.Duration
	requestTimeout time.Duration
}

// Option 客户端可选项
type Option func(*Client)

// WithHTTPClient 使用自定义 http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithConnectTimeout 设置握手超时
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.connectTimeout = d
		}
	}
}

// WithRequestTimeout 设置请求超时
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// NewClient 创建客户端，host 为设备 IP 或主机名
func NewClient(host, username, password string, opts ...Option) *Client {
	c := &Client{
		baseURL:        (&url.URL{Scheme: "http", Host: host, Path: "/app"}).String(),
		username:       username,
		password:       password,
		httpClient:     &http.Client{},
		connectTimeout: DefaultConnectTimeout,
		requestTimeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handshake 执行 KLAP 两段握手，成功后返回会话
func (c *Client) Handshake(ctx context.Context) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	localSeed := make([]byte, seedSize)
	if _, err := rand.Read(localSeed); err != nil {
		return nil, fmt.Errorf("generate local seed: %w", err)
	}
	auth := authHash(c.username, c.password)

	resp, cookie, err := c.post(ctx, "/handshake1", nil, "", localSeed)
	if err != nil {
		return nil, fmt.Errorf("%w: handshake1: %w", ErrHandshake, err)
	}
	if len(resp) != seedSize+hashSize {
		return nil, fmt.Errorf("%w: handshake1 response length %d", ErrHandshake, len(resp))
	}
	if cookie == "" {
		return nil, fmt.Errorf("%w: handshake1 returned no session cookie", ErrHandshake)
	}
	remoteSeed, serverHash := resp[:seedSize], resp[seedSize:]

	if subtle.ConstantTimeCompare(serverHash, sha256Sum(localSeed, remoteSeed, auth)) != 1 {
		return nil, ErrAuth
	}

	if _, _, err := c.post(ctx, "/handshake2", nil, cookie, sha256Sum(remoteSeed, localSeed, auth)); err != nil {
		return nil, fmt.Errorf("%w: handshake2: %w", ErrHandshake, err)
	}

	return &Session{
		client: c,
		cookie: cookie,
		cipher: newKlapCipher(localSeed, remoteSeed, auth),
	}, nil
}

type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.status)
}

func (c *Client) post(ctx context.Context, path string, query url.Values, cookie string, body []byte) ([]byte, string, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookie, Value: cookie})
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", &statusError{status: resp.StatusCode}
	}

	var sid string
	for _, ck := range resp.Cookies() {
		if ck.Name == sessionCookie {
			sid = ck.Value
			break
		}
	}
	return data, sid, nil
}
