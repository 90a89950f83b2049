package imu

import (
	"encoding/binary"
	"fmt"
)

const (
	// LSB per g at ±2 g full scale
	AccelSensitivity = 16384.0
	// LSB per °/s at ±250 °/s full scale
	GyroSensitivity = 131.0
	// LSB per °C of the die temperature sensor
	TempSensitivity = 333.87
	TempOffset      = 21.0
)

type Vector struct {
	X float64
	Y float64
	Z float64
}

func (v Vector) String() string {
	return fmt.Sprintf("(%.4f, %.4f, %.4f)", v.X, v.Y, v.Z)
}

// RawSample holds the signed 16-bit register values of one burst read.
type RawSample struct {
	AccelX int16
	AccelY int16
	AccelZ int16
	Temp   int16
	GyroX  int16
	GyroY  int16
	GyroZ  int16
}

// Sample is a converted, bias corrected measurement.
type Sample struct {
	// Accel in g
	Accel Vector
	// Gyro in °/s
	Gyro Vector
	// Temperature in °C
	Temperature float64
}

// Bias is the zero offset subtracted from converted accelerometer (g) and gyroscope (°/s) readings.
type Bias struct {
	Accel Vector
	Gyro  Vector
}

// Convert scales raw register values to physical units and removes bias.
func Convert(raw RawSample, bias Bias) Sample {
	return Sample{
		Accel: Vector{
			X: float64(raw.AccelX)/AccelSensitivity - bias.Accel.X,
			Y: float64(raw.AccelY)/AccelSensitivity - bias.Accel.Y,
			Z: float64(raw.AccelZ)/AccelSensitivity - bias.Accel.Z,
		},
		Gyro: Vector{
			X: float64(raw.GyroX)/GyroSensitivity - bias.Gyro.X,
			Y: float64(raw.GyroY)/GyroSensitivity - bias.Gyro.Y,
			Z: float64(raw.GyroZ)/GyroSensitivity - bias.Gyro.Z,
		},
		Temperature: float64(raw.Temp)/TempSensitivity + TempOffset,
	}
}

func decodeRaw(buf []byte) RawSample {
	word := func(i int) int16 { return int16(binary.BigEndian.Uint16(buf[i : i+2])) }
	return RawSample{
		AccelX: word(0),
		AccelY: word(2),
		AccelZ: word(4),
		Temp:   word(6),
		GyroX:  word(8),
		GyroY:  word(10),
		GyroZ:  word(12),
	}
}

func encodeRaw(raw RawSample) []byte {
	buf := make([]byte, dataSize)
	for i, w := range []int16{raw.AccelX, raw.AccelY, raw.AccelZ, raw.Temp, raw.GyroX, raw.GyroY, raw.GyroZ} {
		binary.BigEndian.PutUint16(buf[i*2:], uint16(w))
	}
	return buf
}

// accumulator sums raw channels over a calibration run.
type accumulator struct {
	n                      int
	ax, ay, az, gx, gy, gz int64
}

func (a *accumulator) add(raw RawSample) {
	a.n++
	a.ax += int64(raw.AccelX)
	a.ay += int64(raw.AccelY)
	a.az += int64(raw.AccelZ)
	a.gx += int64(raw.GyroX)
	a.gy += int64(raw.GyroY)
	a.gz += int64(raw.GyroZ)
}

// bias assumes the board lies flat and still: Z reads +1 g and every other channel zero.
func (a *accumulator) bias() Bias {
	mean := func(sum int64) float64 { return float64(sum) / float64(a.n) }
	return Bias{
		Accel: Vector{
			X: mean(a.ax) / AccelSensitivity,
			Y: mean(a.ay) / AccelSensitivity,
			Z: mean(a.az)/AccelSensitivity - 1.0,
		},
		Gyro: Vector{
			X: mean(a.gx) / GyroSensitivity,
			Y: mean(a.gy) / GyroSensitivity,
			Z: mean(a.gz) / GyroSensitivity,
		},
	}
}
