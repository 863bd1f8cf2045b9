package link

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/goburrow/serial"
)

// Port 串口或任何字节流设备
type Port = io.ReadWriteCloser

// SerialConfig 串口参数，parity 取 N/E/O
type SerialConfig struct {
	Address     string
	BaudRate    int
	DataBits    int
	StopBits    int
	Parity      string
	ReadTimeout time.Duration
}

// OpenSerial 打开串口。读超时返回 serial.ErrTimeout，读循环会忽略它
func OpenSerial(c SerialConfig) (Port, error) {
	if c.Address == "" {
		return nil, errors.New("link: serial address is empty")
	}
	cfg := serial.Config{
		Address:  c.Address,
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
		StopBits: c.StopBits,
		Parity:   c.Parity,
		Timeout:  c.ReadTimeout,
	}
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = 115200
	}
	if cfg.DataBits <= 0 {
		cfg.DataBits = 8
	}
	if cfg.StopBits <= 0 {
		cfg.StopBits = 1
	}
	if cfg.Parity == "" {
		cfg.Parity = "N"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 100 * time.Millisecond
	}
	p, err := serial.Open(&cfg)
	if err != nil {
		return nil, fmt.Errorf("link: open %s: %w", c.Address, err)
	}
	return p, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, serial.ErrTimeout) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

type pipePort struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (p *pipePort) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *pipePort) Write(b []byte) (int, error) { return p.w.Write(b) }

func (p *pipePort) Close() error {
	_ = p.w.Close()
	return p.r.Close()
}

// Pipe 内存中的一对全双工端口，用于模拟器与测试
func Pipe() (host, device Port) {
	toDevR, toDevW := io.Pipe()
	toHostR, toHostW := io.Pipe()
	return &pipePort{r: toHostR, w: toDevW}, &pipePort{r: toDevR, w: toHostW}
}
