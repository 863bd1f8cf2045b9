// Package app 组装串口链路、会话、模拟器与运维 HTTP 接口
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/hamptokr/dragon-dmc/internal/config"
	"github.com/hamptokr/dragon-dmc/internal/health"
	"github.com/hamptokr/dragon-dmc/internal/httpserver"
	"github.com/hamptokr/dragon-dmc/internal/link"
	"github.com/hamptokr/dragon-dmc/internal/metrics"
	"github.com/hamptokr/dragon-dmc/internal/protocol/dmc"
	"github.com/hamptokr/dragon-dmc/internal/rigsim"
	"github.com/hamptokr/dragon-dmc/internal/session"
)

const helloBackoff = time.Second

// Status /v1/session 的返回内容
type Status struct {
	Ready   bool          `json:"ready"`
	Device  *DeviceInfo   `json:"device,omitempty"`
	Session session.Stats `json:"session"`
	Link    link.Stats    `json:"link"`
}

// DeviceInfo 握手得到的设备能力
type DeviceInfo struct {
	Name         string `json:"name"`
	Firmware     string `json:"firmware"`
	Motors       uint8  `json:"motors"`
	DmxChannels  uint16 `json:"dmx_channels"`
	GioOutputs   uint8  `json:"gio_outputs"`
	GioInputs    uint8  `json:"gio_inputs"`
	HwLimits     uint8  `json:"hw_limits"`
	UploadFrames uint32 `json:"upload_frames"`
	Capabilities uint32 `json:"capabilities"`
}

func deviceInfo(hi dmc.HiResponse) *DeviceInfo {
	return &DeviceInfo{
		Name:         hi.DeviceName(),
		Firmware:     fmt.Sprintf("%d.%d.%d", hi.FwMajor, hi.FwMinor, hi.FwRev),
		Motors:       hi.MotorCount,
		DmxChannels:  hi.DmxCount,
		GioOutputs:   hi.GioOutCount,
		GioInputs:    hi.GioInputCount,
		HwLimits:     hi.HwLimitCount,
		UploadFrames: hi.UploadFrameCount,
		Capabilities: hi.Capabilities,
	}
}

// App 一台设备对应一个实例
type App struct {
	cfg      *cfgpkg.Config
	log      *zap.Logger
	simulate bool

	ready   *Ready
	health  *health.Aggregator
	metrics *metrics.DMCMetrics
	http    *httpserver.Server
	link    *link.Link
	sess    *session.Session
	sim     *rigsim.Device
	devPort link.Port

	rehello chan struct{}

	mu     sync.RWMutex
	device *DeviceInfo
}

// Checksummer 按配置名选择校验算法
func Checksummer(name string) (dmc.Checksummer, error) {
	switch strings.ToLower(name) {
	case "crc16":
		return dmc.CRC16CCITT, nil
	case "sum16":
		return dmc.Sum16, nil
	}
	return nil, fmt.Errorf("app: unknown checksum %q", name)
}

// New 组装各组件，不启动任何协程。simulate 为 true 时连接进程内模拟设备
func New(cfg *cfgpkg.Config, log *zap.Logger, simulate bool) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	sum, err := Checksummer(cfg.Session.Checksum)
	if err != nil {
		return nil, err
	}
	codec := dmc.NewCodec(dmc.WithChecksum(sum))

	a := &App{
		cfg:      cfg,
		log:      log,
		simulate: simulate,
		ready:    NewReady(),
		rehello:  make(chan struct{}, 1),
	}

	var port link.Port
	if simulate {
		host, dev := link.Pipe()
		port, a.devPort = host, dev
		a.sim = rigsim.New(rigsim.DefaultProfile(cfg.App.Name+"-sim"), rigsim.WithCodec(codec), rigsim.WithLogger(log.Named("rigsim")))
	} else {
		port, err = link.OpenSerial(link.SerialConfig{
			Address:     cfg.Serial.Address,
			BaudRate:    cfg.Serial.BaudRate,
			DataBits:    cfg.Serial.DataBits,
			StopBits:    cfg.Serial.StopBits,
			Parity:      strings.ToUpper(cfg.Serial.Parity),
			ReadTimeout: cfg.Serial.ReadTimeout,
		})
		if err != nil {
			return nil, err
		}
	}

	reg := metrics.NewRegistry()
	a.metrics = metrics.NewDMCMetrics(reg, codec.Registry())

	a.link = link.New(port, link.Config{
		TickInterval: cfg.Session.TickInterval,
		WriteRate:    cfg.Serial.WriteRate,
		WriteBurst:   cfg.Serial.WriteBurst,
	}, log.Named("link"))
	a.link.SetObserver(a.metrics)

	router := dmc.NewRouter()
	router.Register(dmc.TypeOf(dmc.CmdHi, false), a.onDeviceHello)

	a.sess = session.New(a.link,
		session.WithCodec(codec),
		session.WithAckTimeout(cfg.Session.AckTimeout),
		session.WithRetries(uint8(cfg.Session.Retries)),
		session.WithMaxInFlight(cfg.Session.MaxInFlight),
		session.WithAutoAck(cfg.Session.AutoAck),
		session.WithRouter(router),
		session.WithObserver(a.metrics),
		session.WithLogger(log.Named("session")),
		session.WithEventHandler(a.onEvent),
	)

	a.health = health.NewAggregator(
		health.LinkChecker(a.link.Stats),
		health.SessionChecker(a.sess.Stats, func() bool { return a.Device() != nil && a.ready.Ready() }),
	)

	if cfg.HTTP.Enable {
		routes := httpserver.Routes{Ready: a.ready.Ready, Status: func() any { return a.Status() }, Health: a.health}
		if cfg.Metrics.Enable {
			routes.MetricsPath = cfg.Metrics.Path
			routes.MetricsHandler = metrics.Handler(reg)
		}
		a.http = httpserver.New(cfg.HTTP, routes)
	}
	return a, nil
}

func (a *App) Session() *session.Session { return a.sess }

// Simulator 仅在 simulate 模式下非 nil
func (a *App) Simulator() *rigsim.Device { return a.sim }

func (a *App) Ready() bool { return a.ready.Ready() }

// Health 当前健康报告
func (a *App) Health(ctx context.Context) health.Report { return a.health.Check(ctx) }

func (a *App) Device() *DeviceInfo {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.device
}

func (a *App) Status() Status {
	return Status{
		Ready:   a.ready.Ready(),
		Device:  a.Device(),
		Session: a.sess.Stats(),
		Link:    a.link.Stats(),
	}
}

// Run 启动链路、握手与 HTTP 服务，阻塞直到 ctx 结束或串口失败
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.log.Info("starting dmcd", zap.String("session_id", a.sess.ID()), zap.Bool("simulate", a.simulate))

	if a.sim != nil {
		go func() {
			if err := a.sim.Serve(ctx, a.devPort); err != nil {
				a.log.Warn("simulator stopped", zap.Error(err))
			}
		}()
	}

	linkErr := make(chan error, 1)
	go func() { linkErr <- a.link.Run(ctx, a.sess) }()
	a.ready.SetLinkReady(true)

	if a.http != nil {
		go func() {
			if err := a.http.Start(); err != nil {
				a.log.Error("http server error", zap.Error(err))
			}
		}()
		a.log.Info("http server started", zap.String("addr", a.cfg.HTTP.Addr))
	}

	go a.handshakeLoop(ctx)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-linkErr:
		if runErr != nil {
			a.log.Error("serial link stopped", zap.Error(runErr))
		}
		cancel()
	}
	a.ready.SetLinkReady(false)
	a.ready.SetHelloReady(false)

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if a.http != nil {
		_ = a.http.Shutdown(shutdownCtx)
	}
	_ = a.sess.Close()
	if runErr == nil {
		<-linkErr
	}
	a.log.Info("shutdown complete")
	return runErr
}

// handshakeLoop 启动时及设备重启后发送 MSG_HI，失败则退避重试
func (a *App) handshakeLoop(ctx context.Context) {
	a.rehello <- struct{}{}
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.rehello:
		}
		for {
			err := a.hello(ctx)
			if err == nil {
				break
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, session.ErrSessionClosed) {
				return
			}
			a.log.Warn("hello failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(helloBackoff):
			}
		}
	}
}

func (a *App) hello(ctx context.Context) error {
	hi, err := a.sess.Hello(ctx)
	if err != nil {
		return err
	}
	info := deviceInfo(hi)
	a.mu.Lock()
	a.device = info
	a.mu.Unlock()
	a.ready.SetHelloReady(true)
	a.log.Info("device hello",
		zap.String("name", info.Name),
		zap.String("firmware", info.Firmware),
		zap.Uint8("motors", info.Motors),
		zap.Uint16("dmx_channels", info.DmxChannels))
	return nil
}

// onDeviceHello 设备主动发来 MSG_HI 表示它重启过，重新握手
func (a *App) onDeviceHello(m dmc.Message) error {
	a.log.Info("device announced itself", zap.Uint32("id", m.ID))
	a.ready.SetHelloReady(false)
	select {
	case a.rehello <- struct{}{}:
	default:
	}
	return nil
}

func (a *App) onEvent(ev session.Event) {
	if ev.Kind == session.EventFrameError {
		a.log.Debug("frame error", zap.String("reason", dmc.Reason(ev.Err)))
	}
}
