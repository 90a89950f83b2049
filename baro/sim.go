package baro

import (
	"encoding/binary"

	"github.com/mklimuk/flightboard/i2c"
)

// ReferenceCalibration is the trimming set of the datasheet's worked calculation.
var ReferenceCalibration = Calibration{
	T1: 27504, T2: 26435, T3: -1000,
	P1: 36477, P2: -10685, P3: 3024, P4: 2855, P5: 140, P6: -7, P7: 15500, P8: -14600, P9: 6000,
}

// ReferenceRaw compensates to 25.08 °C and 1006.53 hPa with ReferenceCalibration.
var ReferenceRaw = RawSample{Pressure: 415148, Temperature: 519888}

// NewSimDevice returns a register file that answers like a BMP280 holding cal and raw.
func NewSimDevice(cal Calibration, raw RawSample) *i2c.RegisterFile {
	dev := i2c.NewRegisterFile()
	dev.Set(regChipID, ChipID)
	dev.Set(regCalibration, EncodeCalibration(cal)...)
	SetSimRaw(dev, raw)
	return dev
}

// SetSimRaw updates the data registers of a simulated device.
func SetSimRaw(dev *i2c.RegisterFile, raw RawSample) {
	dev.Set(regData, encodeRaw(raw)...)
}

// EncodeCalibration is the inverse of ParseCalibration.
func EncodeCalibration(cal Calibration) []byte {
	buf := make([]byte, calibrationSize)
	words := []uint16{
		cal.T1, uint16(cal.T2), uint16(cal.T3),
		cal.P1, uint16(cal.P2), uint16(cal.P3), uint16(cal.P4), uint16(cal.P5),
		uint16(cal.P6), uint16(cal.P7), uint16(cal.P8), uint16(cal.P9),
	}
	for i, w := range words {
		binary.LittleEndian.PutUint16(buf[i*2:], w)
	}
	return buf
}

func encodeRaw(raw RawSample) []byte {
	enc := func(v int32) []byte {
		return []byte{byte(v >> 12), byte(v >> 4), byte(v<<4) & 0xF0}
	}
	return append(enc(raw.Pressure), enc(raw.Temperature)...)
}
