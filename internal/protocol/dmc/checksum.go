package dmc

// Checksummer 帧校验算法。协议文档未固定算法，实现可替换
type Checksummer interface {
	Sum(b []byte) uint16
}

// ChecksumFunc 函数适配器
type ChecksumFunc func(b []byte) uint16

func (f ChecksumFunc) Sum(b []byte) uint16 { return f(b) }

const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// CRC16CCITT CRC-16/CCITT-FALSE（poly 0x1021，init 0xFFFF），默认算法
var CRC16CCITT Checksummer = ChecksumFunc(crc16CCITT)

// Sum16 累加校验（低16位）
var Sum16 Checksummer = ChecksumFunc(sum16)

func crc16CCITT(b []byte) uint16 {
	crc := uint16(crcInitial)
	for _, v := range b {
		crc ^= uint16(v) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ crcPolynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func sum16(b []byte) uint16 {
	var sum uint32
	for i := 0; i < len(b); i++ {
		sum += uint32(b[i])
	}
	return uint16(sum & 0xFFFF)
}

// Compute 计算 marker+id+type+length+payload 的校验值
func Compute(c Checksummer, mk []byte, id uint32, typ MessageType, length uint16, payload []byte) uint16 {
	buf := make([]byte, 0, HeaderLen+len(payload))
	buf = append(buf, mk...)
	buf = ByteOrder.AppendUint32(buf, id)
	buf = ByteOrder.AppendUint16(buf, uint16(typ))
	buf = ByteOrder.AppendUint16(buf, length)
	buf = append(buf, payload...)
	return c.Sum(buf)
}

// Verify 校验完整帧：末尾2字节为校验字段，覆盖其之前的所有字节
func Verify(c Checksummer, frame []byte) bool {
	if len(frame) < MinFrameLen {
		return false
	}
	body := frame[:len(frame)-ChecksumLen]
	got := ByteOrder.Uint16(frame[len(frame)-ChecksumLen:])
	return c.Sum(body) == got
}
