package rigsim

import "github.com/hamptokr/dragon-dmc/internal/protocol/dmc"

// DefaultProfile 演示用的设备能力：4 轴、512 DMX 通道、8 路触发输出
func DefaultProfile(name string) dmc.HiResponse {
	hi := dmc.NewHiResponse(name)
	hi.FwRev = 1
	hi.MotorCount = 4
	hi.DmxCount = 512
	hi.GioOutCount = 8
	hi.GioInputCount = 2
	hi.HwLimitCount = 2
	hi.UploadFrameCount = 1024
	return hi
}
