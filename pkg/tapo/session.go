package tapo

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"
)

// EnergyUsage get_energy_usage 结果，CurrentPower 单位 mW
type EnergyUsage struct {
	CurrentPower int64 `json:"current_power"`
	TodayEnergy  int64 `json:"today_energy"`
	MonthEnergy  int64 `json:"month_energy"`
	TodayRuntime int64 `json:"today_runtime"`
	MonthRuntime int64 `json:"month_runtime"`
}

// DeviceInfo get_device_info 结果（只保留导出器用到的字段）
type DeviceInfo struct {
	DeviceID        string `json:"device_id"`
	DeviceOn        bool   `json:"device_on"`
	Model           string `json:"model"`
	Type            string `json:"type"`
	Nickname        string `json:"nickname"`
	SoftwareVersion string `json:"sw_ver"`
	HardwareVersion string `json:"hw_ver"`
	Rssi            int    `json:"rssi"`
	OnTime          int64  `json:"on_time"`
}

type request struct {
	Method          string `json:"method"`
	Params          any    `json:"params,omitempty"`
	RequestTimeMils int64  `json:"request_time_milis"`
}

type response struct {
	ErrorCode int             `json:"error_code"`
	Result    json.RawMessage `json:"result"`
}

// Session 已握手的加密会话。并发调用安全（序号分配加锁）。
type Session struct {
	client *Client
	cookie string
	cipher *klapCipher
	closed atomic.Bool
}

// Request 发送一次加密请求，result 为 nil 时忽略结果体
func (s *Session) Request(ctx context.Context, method string, params, result any) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	ctx, cancel := context.WithTimeout(ctx, s.client.requestTimeout)
	defer cancel()

	plain, err := json.Marshal(request{
		Method:          method,
		Params:          params,
		RequestTimeMils: time.Now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}
	payload, seq, err := s.cipher.encrypt(plain)
	if err != nil {
		return fmt.Errorf("encrypt %s: %w", method, err)
	}

	query := url.Values{"seq": []string{strconv.FormatInt(int64(seq), 10)}}
	body, _, err := s.client.post(ctx, "/request", query, s.cookie, payload)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && (se.status == http.StatusForbidden || se.status == http.StatusUnauthorized) {
			return fmt.Errorf("%s: %w", method, ErrSessionExpired)
		}
		return fmt.Errorf("%s: %w", method, err)
	}

	decrypted, err := s.cipher.decrypt(seq, body)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	var env response
	if err := json.Unmarshal(decrypted, &env); err != nil {
		return fmt.Errorf("%s: %w: %v", method, ErrProtocol, err)
	}
	if env.ErrorCode != 0 {
		return &DeviceError{Method: method, Code: env.ErrorCode}
	}
	if result == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, result); err != nil {
		return fmt.Errorf("%s: %w: %v", method, ErrProtocol, err)
	}
	return nil
}

// GetEnergyUsage 读取功率与累计电量
func (s *Session) GetEnergyUsage(ctx context.Context) (*EnergyUsage, error) {
	var out EnergyUsage
	if err := s.Request(ctx, "get_energy_usage", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetDeviceInfo 读取设备信息，nickname 由 base64 解码
func (s *Session) GetDeviceInfo(ctx context.Context) (*DeviceInfo, error) {
	var out DeviceInfo
	if err := s.Request(ctx, "get_device_info", nil, &out); err != nil {
		return nil, err
	}
	if nick, err := base64.StdEncoding.DecodeString(out.Nickname); err == nil {
		out.Nickname = string(nick)
	}
	return &out, nil
}

// Close 标记会话关闭并释放空闲连接
func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.client.httpClient.CloseIdleConnections()
	return nil
}
