package imu

import (
	"github.com/mklimuk/flightboard/i2c"
)

// LevelRaw is what a perfect sensor lying flat reports: +1 g on Z, no rotation, 21 °C.
var LevelRaw = RawSample{AccelZ: 16384}

// NewSimDevice returns a register file that answers like an MPU9250 reporting raw.
func NewSimDevice(raw RawSample) *i2c.RegisterFile {
	dev := i2c.NewRegisterFile()
	dev.Set(regWhoAmI, WhoAmI)
	SetSimRaw(dev, raw)
	return dev
}

// SetSimRaw updates the data registers of a simulated device.
func SetSimRaw(dev *i2c.RegisterFile, raw RawSample) {
	dev.Set(regAccelXoutH, encodeRaw(raw)...)
}
