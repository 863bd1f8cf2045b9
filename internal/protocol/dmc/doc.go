// Package dmc 实现 DMC v2 协议（Dragonframe 运动控制）的帧编解码。
//
// 帧格式："DF" | id:u32 | type:u16 | length:u16 | payload[length] | checksum:u16
//
// 职责边界：
// - 校验算法（Checksummer，可替换）
// - 帧编码/两阶段解码（Codec）
// - 消息类型注册表（Registry，只读）
// - 流式重组与重同步（Reassembler）
//
// 传输（串口读写）与请求关联不在本包内，见 internal/link 与 internal/session。
package dmc
