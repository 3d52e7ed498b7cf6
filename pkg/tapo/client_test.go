package tapo

import (
	"bytes"
	"context"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapo-exporter/pkg/tapo/tapotest"
)

func newTestDevice(t *testing.T) (*tapotest.Device, string) {
	t.Helper()
	dev := tapotest.NewDevice("user@example.com", "secret", "P110")
	return dev, dev.Serve(t)
}

func TestSessionReadsEnergyAndInfo(t *testing.T) {
	dev, host := newTestDevice(t)
	dev.Nickname = "Desk Lamp"
	dev.SetReading(1200, 15, true)

	sess, err := NewClient(host, "user@example.com", "secret").Handshake(context.Background())
	require.NoError(t, err)

	usage, err := sess.GetEnergyUsage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1200), usage.CurrentPower)
	assert.Equal(t, int64(15), usage.TodayEnergy)

	info, err := sess.GetDeviceInfo(context.Background())
	require.NoError(t, err)
	assert.True(t, info.DeviceOn)
	assert.Equal(t, "P110", info.Model)
	assert.Equal(t, "Desk Lamp", info.Nickname)

	assert.Equal(t, []string{"get_energy_usage", "get_device_info"}, dev.Requests())
	assert.Zero(t, dev.BadSignatures())
}

func TestHandshakeRejectsWrongPassword(t *testing.T) {
	_, host := newTestDevice(t)

	_, err := NewClient(host, "user@example.com", "wrong").Handshake(context.Background())
	require.ErrorIs(t, err, ErrAuth)
}

func TestRequestReturnsDeviceErrorCode(t *testing.T) {
	dev, host := newTestDevice(t)
	dev.SetErrorCode("get_energy_usage", -1008)

	sess, err := NewClient(host, "user@example.com", "secret").Handshake(context.Background())
	require.NoError(t, err)

	_, err = sess.GetEnergyUsage(context.Background())
	require.ErrorIs(t, err, ErrDeviceCode)

	var de *DeviceError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, -1008, de.Code)
}

func TestStaleCookieIsSessionExpired(t *testing.T) {
	_, host := newTestDevice(t)
	client := NewClient(host, "user@example.com", "secret")

	first, err := client.Handshake(context.Background())
	require.NoError(t, err)
	// 第二次握手使设备端的旧 cookie 失效
	_, err = client.Handshake(context.Background())
	require.NoError(t, err)

	_, err = first.GetDeviceInfo(context.Background())
	require.ErrorIs(t, err, ErrSessionExpired)
}

func TestHandshakeHonoursConnectTimeout(t *testing.T) {
	release := make(chan struct{})
	hang := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	srv := httptest.NewServer(hang)
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	client := NewClient(strings.TrimPrefix(srv.URL, "http://"), "u", "p",
		WithConnectTimeout(50*time.Millisecond), WithHTTPClient(srv.Client()))

	start := time.Now()
	_, err := client.Handshake(context.Background())
	require.ErrorIs(t, err, ErrHandshake)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRequestHonoursRequestTimeout(t *testing.T) {
	dev, host := newTestDevice(t)
	dev.SetDelay("get_device_info", time.Second)

	sess, err := NewClient(host, "user@example.com", "secret", WithRequestTimeout(50*time.Millisecond)).
		Handshake(context.Background())
	require.NoError(t, err)

	_, err = sess.GetDeviceInfo(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClosedSessionRejectsRequests(t *testing.T) {
	_, host := newTestDevice(t)
	sess, err := NewClient(host, "user@example.com", "secret").Handshake(context.Background())
	require.NoError(t, err)

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())

	_, err = sess.GetDeviceInfo(context.Background())
	require.ErrorIs(t, err, ErrSessionClosed)
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

// 固定种子与凭据下的已知答案，期望值由独立的 sha256/openssl 计算得出
func TestKlapKnownAnswer(t *testing.T) {
	local := make([]byte, seedSize)
	remote := make([]byte, seedSize)
	for i := range local {
		local[i] = byte(i)
		remote[i] = byte(16 + i)
	}
	auth := authHash("user@example.com", "secret")
	assert.Equal(t, mustHex(t, "b039216532fc844e9ae0cc8fe3ea911c9ba09c641bb96a3e1f776d93f7b5ae9b"), auth)
	assert.Equal(t, mustHex(t, "8ed3b905e654fbee23900d0244156a33029c025b71b03bfcc601eff33aaebb70"),
		sha256Sum(local, remote, auth), "handshake1 server hash")
	assert.Equal(t, mustHex(t, "1e590e7a4dc128da48ed17e06fe23ddb6ec646bb6da2eb00708d590f194201d7"),
		sha256Sum(remote, local, auth), "handshake2 payload")

	c := newKlapCipher(local, remote, auth)
	assert.Equal(t, mustHex(t, "35dcf29cd535ce140a239c67f641d395"), c.key)
	assert.Equal(t, mustHex(t, "863e09a70667472d3fa152a4"), c.ivPrefix)
	assert.Equal(t, mustHex(t, "777443e2fdd5cb21052633a60e830f44c8654b3a701f449231ed11fa"), c.signature)
	assert.Equal(t, int32(-903964344), c.seq)

	payload, seq, err := c.encrypt([]byte(`{"method":"get_device_info"}`))
	require.NoError(t, err)
	assert.Equal(t, int32(-903964343), seq)
	require.Len(t, payload, signatureSize+32)
	assert.Equal(t, mustHex(t, "81da24b0a1db4c9ec2fd895b347d416921d7f7a822457b501a52072e5f9acebf"), payload[:signatureSize])
	assert.Equal(t, mustHex(t, "1119b459358000bec16c976ef226a249c491bf18064c9319a51d85792116a683"), payload[signatureSize:])
}

func TestKlapCipherSequenceAdvances(t *testing.T) {
	local := bytes.Repeat([]byte{1}, seedSize)
	remote := bytes.Repeat([]byte{2}, seedSize)
	c := newKlapCipher(local, remote, authHash("u", "p"))
	peer := newKlapCipher(local, remote, authHash("u", "p"))

	first, seq1, err := c.encrypt([]byte(`{"method":"a"}`))
	require.NoError(t, err)
	second, seq2, err := c.encrypt([]byte(`{"method":"a"}`))
	require.NoError(t, err)

	assert.Equal(t, seq1+1, seq2)
	assert.NotEqual(t, first, second)

	plain, err := peer.decrypt(seq2, second)
	require.NoError(t, err)
	assert.Equal(t, `{"method":"a"}`, string(plain))

	_, err = peer.decrypt(seq2, second[:10])
	require.ErrorIs(t, err, ErrProtocol)
}
