package device

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapo-exporter/pkg/tapo"
	"github.com/tapo-exporter/pkg/tapo/tapotest"
)

func TestParseType(t *testing.T) {
	typ, err := ParseType(" p110 ")
	require.NoError(t, err)
	assert.Equal(t, P110, typ)

	typ, err = ParseType("P115")
	require.NoError(t, err)
	assert.Equal(t, P115, typ)

	_, err = ParseType("L530")
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestIdentityIsComparableAndLabelled(t *testing.T) {
	a := Identity{Type: P110, Name: "plug1", IP: "10.0.0.5"}
	b := Identity{Type: P110, Name: "plug1", IP: "10.0.0.5"}
	assert.Equal(t, a, b)

	seen := map[Identity]int{a: 1}
	assert.Equal(t, 1, seen[b])

	assert.Equal(t, "P110", a.Labels()[LabelDeviceType])
	assert.Equal(t, "plug1", a.Labels()[LabelName])
	assert.Equal(t, "10.0.0.5", a.Labels()[LabelIP])
	assert.Equal(t, []string{"device_type", "name", "ip"}, LabelNames())
}

func TestCredentialNeverRendersPassword(t *testing.T) {
	c := Credential{Username: "a@b.com", Password: "hunter2"}
	assert.NotContains(t, c.String(), "hunter2")
	assert.NotContains(t, fmt.Sprintf("%v", c), "hunter2")
}

func TestDialerRejectsUnknownType(t *testing.T) {
	d := NewDialer(0, 0)
	_, err := d.Open(context.Background(), Type("L530"), "10.0.0.5", Credential{})

	var ce *ConnectError
	require.ErrorAs(t, err, &ce)
	assert.True(t, errors.Is(err, ErrUnsupportedType))
	assert.True(t, IsConnectError(err))
	assert.False(t, IsRequestError(err))
}

func TestDialerWrapsUnreachableHostAsConnectError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	host := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	d := NewDialer(500*time.Millisecond, time.Second)
	_, err := d.Open(context.Background(), P110, host, Credential{Username: "u", Password: "p"})

	var ce *ConnectError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, P110, ce.Type)
	assert.Equal(t, host, ce.Host)
}

func TestRequestErrorUnwraps(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("round: %w", &RequestError{Op: OpGetPower, Err: cause})
	assert.True(t, IsRequestError(err))
	assert.ErrorIs(t, err, cause)
}

var plugCred = Credential{Username: "user@example.com", Password: "secret"}

func servePlug(t *testing.T, model string) (*tapotest.Device, string) {
	t.Helper()
	dev := tapotest.NewDevice(plugCred.Username, plugCred.Password, model)
	dev.SetReading(1200, 15, true)
	return dev, dev.Serve(t)
}

func TestDialerOpensP110(t *testing.T) {
	_, host := servePlug(t, "P110")

	sess, err := NewDialer(time.Second, time.Second).Open(context.Background(), P110, host, plugCred)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })

	usage, err := sess.GetPower(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1200), usage.CurrentPower)
	assert.Equal(t, int64(15), usage.TodayEnergy)

	on, err := sess.GetState(context.Background())
	require.NoError(t, err)
	assert.True(t, on)
}

func TestDialerRejectsModelMismatch(t *testing.T) {
	dev, host := servePlug(t, "P110")

	_, err := NewDialer(time.Second, time.Second).Open(context.Background(), P115, host, plugCred)
	require.Error(t, err)

	var ce *ConnectError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, P115, ce.Type)
	assert.ErrorIs(t, err, tapo.ErrModelMismatch)
	assert.Contains(t, dev.Requests(), "get_device_info")
}

func TestPlugSessionReadFailuresAreRequestErrors(t *testing.T) {
	dev, host := servePlug(t, "P115")

	sess, err := NewDialer(time.Second, time.Second).Open(context.Background(), P115, host, plugCred)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })

	dev.SetErrorCode("get_energy_usage", -1)
	_, err = sess.GetPower(context.Background())
	var re *RequestError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, OpGetPower, re.Op)
	assert.ErrorIs(t, err, tapo.ErrDeviceCode)
	assert.False(t, IsConnectError(err))

	dev.SetErrorCode("get_device_info", -1)
	_, err = sess.GetState(context.Background())
	require.ErrorAs(t, err, &re)
	assert.Equal(t, OpGetState, re.Op)
	assert.ErrorIs(t, err, tapo.ErrDeviceCode)
}

func TestDialerOpenSharesOneDeadline(t *testing.T) {
	dev, host := servePlug(t, "P110")
	// 每一步单独都在超时内，合计超出
	dev.SetDelay("handshake1", 200*time.Millisecond)
	dev.SetDelay("get_device_info", 200*time.Millisecond)

	start := time.Now()
	_, err := NewDialer(300*time.Millisecond, time.Second).Open(context.Background(), P110, host, plugCred)
	require.Error(t, err)
	assert.True(t, IsConnectError(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 550*time.Millisecond)
}
