// Package tapotest 提供一个基于 httptest 的 Tapo 插座模拟器（设备端 KLAP 实现），
// 供协议客户端与设备抽象层的测试使用。设备端密钥派生独立实现，不复用客户端代码。
package tapotest

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// Device 模拟一台 Tapo 插座，读数通过 Set 方法修改
type Device struct {
	Username string
	Password string
	Model    string
	Nickname string

	mu           sync.Mutex
	deviceOn     bool
	currentPower int64
	todayEnergy  int64
	codes        map[string]int
	delays       map[string]time.Duration
	requests     []string
	badSigs      int

	cookie   string
	local    []byte
	remote   []byte
	auth     []byte
	key      []byte
	ivPrefix []byte
	sigKey   []byte
}

// NewDevice 创建模拟设备
func NewDevice(username, password, model string) *Device {
	return &Device{
		Username: username,
		Password: password,
		Model:    model,
		codes:    map[string]int{},
		delays:   map[string]time.Duration{},
	}
}

// Serve 启动 httptest 服务，返回 host:port；测试结束时自动关闭
func (d *Device) Serve(t testing.TB) string {
	t.Helper()
	srv := httptest.NewServer(d)
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://")
}

// SetReading 设置功率（mW）、当日电量与开关状态
func (d *Device) SetReading(powerMW, todayWh int64, on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.currentPower, d.todayEnergy, d.deviceOn = powerMW, todayWh, on
}

// SetErrorCode 让某个方法返回非零 error_code，0 表示恢复
func (d *Device) SetErrorCode(method string, code int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.codes[method] = code
}

// SetDelay 在某一步响应前等待；step 为 "handshake1"、"handshake2" 或方法名
func (d *Device) SetDelay(step string, delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delays[step] = delay
}

// Requests 已成功解密的方法名（按到达顺序）
func (d *Device) Requests() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.requests...)
}

// BadSignatures 签名校验失败的请求数
func (d *Device) BadSignatures() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.badSigs
}

func (d *Device) wait(r *http.Request, step string) {
	d.mu.Lock()
	delay := d.delays[step]
	d.mu.Unlock()
	if delay <= 0 {
		return
	}
	select {
	case <-time.After(delay):
	case <-r.Context().Done():
	}
}

func digest(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

func (d *Device) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	switch r.URL.Path {
	case "/app/handshake1":
		d.wait(r, "handshake1")
		d.handshake1(w, body)
	case "/app/handshake2":
		d.wait(r, "handshake2")
		d.handshake2(w, r, body)
	case "/app/request":
		d.request(w, r, body)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (d *Device) handshake1(w http.ResponseWriter, local []byte) {
	if len(local) != 16 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	u := sha1.Sum([]byte(d.Username))
	p := sha1.Sum([]byte(d.Password))

	remote := make([]byte, 16)
	_, _ = rand.Read(remote)
	sid := make([]byte, 8)
	_, _ = rand.Read(sid)

	d.mu.Lock()
	d.local, d.remote = local, remote
	d.auth = digest(u[:], p[:])
	d.cookie = hex.EncodeToString(sid)
	d.key, d.ivPrefix, d.sigKey = nil, nil, nil
	auth, cookie := d.auth, d.cookie
	d.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: "TP_SESSIONID", Value: cookie})
	_, _ = w.Write(append(append([]byte(nil), remote...), digest(local, remote, auth)...))
}

func (d *Device) validCookie(r *http.Request) bool {
	ck, err := r.Cookie("TP_SESSIONID")
	return err == nil && d.cookie != "" && ck.Value == d.cookie
}

func (d *Device) handshake2(w http.ResponseWriter, r *http.Request, body []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.validCookie(r) || !bytes.Equal(body, digest(d.remote, d.local, d.auth)) {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	material := append(append(append([]byte(nil), d.local...), d.remote...), d.auth...)
	d.key = digest([]byte("lsk"), material)[:16]
	d.ivPrefix = digest([]byte("iv"), material)[:12]
	d.sigKey = digest([]byte("ldk"), material)[:28]
}

func (d *Device) iv(seq uint32) []byte {
	iv := make([]byte, 16)
	copy(iv, d.ivPrefix)
	binary.BigEndian.PutUint32(iv[12:], seq)
	return iv
}

func (d *Device) request(w http.ResponseWriter, r *http.Request, payload []byte) {
	d.mu.Lock()
	if !d.validCookie(r) || d.key == nil {
		d.mu.Unlock()
		w.WriteHeader(http.StatusForbidden)
		return
	}
	seq64, err := strconv.ParseInt(r.URL.Query().Get("seq"), 10, 32)
	if err != nil || len(payload) < 32+16 || (len(payload)-32)%16 != 0 {
		d.mu.Unlock()
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	seq := uint32(int32(seq64))
	var seqBytes [4]byte
	binary.BigEndian.PutUint32(seqBytes[:], seq)

	sig, ct := payload[:32], payload[32:]
	if !bytes.Equal(sig, digest(d.sigKey, seqBytes[:], ct)) {
		d.badSigs++
		d.mu.Unlock()
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	block, _ := aes.NewCipher(d.key)
	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, d.iv(seq)).CryptBlocks(plain, ct)
	pad := int(plain[len(plain)-1])
	if pad == 0 || pad > 16 {
		d.mu.Unlock()
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var req struct {
		Method string `json:"method"`
	}
	if err := json.Unmarshal(plain[:len(plain)-pad], &req); err != nil {
		d.mu.Unlock()
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	d.requests = append(d.requests, req.Method)

	out := map[string]any{"error_code": d.codes[req.Method]}
	switch req.Method {
	case "get_energy_usage":
		out["result"] = map[string]any{"current_power": d.currentPower, "today_energy": d.todayEnergy}
	case "get_device_info":
		out["result"] = map[string]any{
			"device_on": d.deviceOn,
			"model":     d.Model,
			"nickname":  base64.StdEncoding.EncodeToString([]byte(d.Nickname)),
		}
	}
	if d.codes[req.Method] != 0 {
		delete(out, "result")
	}
	raw, _ := json.Marshal(out)

	n := 16 - len(raw)%16
	raw = append(raw, bytes.Repeat([]byte{byte(n)}, n)...)
	sealed := make([]byte, len(raw))
	cipher.NewCBCEncrypter(block, d.iv(seq)).CryptBlocks(sealed, raw)
	resp := append(digest(d.sigKey, seqBytes[:], sealed), sealed...)
	d.mu.Unlock()

	d.wait(r, req.Method)
	_, _ = w.Write(resp)
}
