package device

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tapo-exporter/pkg/tapo"
)

// Dialer 真实设备的 Opener：按型号分派到对应握手流程
type Dialer struct {
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// NewDialer 创建 Dialer，超时 <=0 时使用默认值
func NewDialer(connectTimeout, requestTimeout time.Duration) *Dialer {
	if connectTimeout <= 0 {
		connectTimeout = tapo.DefaultConnectTimeout
	}
	if requestTimeout <= 0 {
		requestTimeout = tapo.DefaultRequestTimeout
	}
	return &Dialer{ConnectTimeout: connectTimeout, RequestTimeout: requestTimeout}
}

// Open 实现 Opener
func (d *Dialer) Open(ctx context.Context, t Type, host string, cred Credential) (Session, error) {
	var (
		sess Session
		err  error
	)
	switch t {
	case P110:
		sess, err = d.openP110(ctx, host, cred)
	case P115:
		sess, err = d.openP115(ctx, host, cred)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedType, t)
	}
	if err != nil {
		return nil, &ConnectError{Type: t, Host: host, Err: err}
	}
	return sess, nil
}

func (d *Dialer) openP110(ctx context.Context, host string, cred Credential) (Session, error) {
	return d.openEnergyPlug(ctx, host, cred, "P110")
}

func (d *Dialer) openP115(ctx context.Context, host string, cred Credential) (Session, error) {
	return d.openEnergyPlug(ctx, host, cred, "P115")
}

// openEnergyPlug 握手后校验设备上报的型号前缀，防止配置写错型号。
// 握手与型号校验共用同一个 ConnectTimeout 截止时间。
func (d *Dialer) openEnergyPlug(ctx context.Context, host string, cred Credential, model string) (Session, error) {
	ctx, cancel := context.WithTimeout(ctx, d.ConnectTimeout)
	defer cancel()

	client := tapo.NewClient(host, cred.Username, cred.Password,
		tapo.WithConnectTimeout(d.ConnectTimeout),
		tapo.WithRequestTimeout(d.RequestTimeout),
	)
	sess, err := client.Handshake(ctx)
	if err != nil {
		return nil, err
	}

	info, err := sess.GetDeviceInfo(ctx)
	if err != nil {
		_ = sess.Close()
		return nil, err
	}
	if !strings.HasPrefix(strings.ToUpper(info.Model), model) {
		_ = sess.Close()
		return nil, fmt.Errorf("%w: configured %s, device reports %q", tapo.ErrModelMismatch, model, info.Model)
	}
	return &plugSession{sess: sess}, nil
}

// plugSession 适配 tapo.Session 到 Session 接口
type plugSession struct {
	sess *tapo.Session
}

func (p *plugSession) GetPower(ctx context.Context) (EnergyUsage, error) {
	usage, err := p.sess.GetEnergyUsage(ctx)
	if err != nil {
		return EnergyUsage{}, &RequestError{Op: OpGetPower, Err: err}
	}
	return EnergyUsage{
		CurrentPower: usage.CurrentPower,
		TodayEnergy:  usage.TodayEnergy,
		MonthEnergy:  usage.MonthEnergy,
	}, nil
}

func (p *plugSession) GetState(ctx context.Context) (bool, error) {
	info, err := p.sess.GetDeviceInfo(ctx)
	if err != nil {
		return false, &RequestError{Op: OpGetState, Err: err}
	}
	return info.DeviceOn, nil
}

func (p *plugSession) Close() error {
	return p.sess.Close()
}
