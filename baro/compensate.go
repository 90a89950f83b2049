package baro

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Calibration holds the factory trimming parameters stored in the sensor NVM.
type Calibration struct {
	T1 uint16
	T2 int16
	T3 int16
	P1 uint16
	P2 int16
	P3 int16
	P4 int16
	P5 int16
	P6 int16
	P7 int16
	P8 int16
	P9 int16
}

// FineTemperature is the intermediate temperature value the pressure formula depends on.
// It must come from the same acquisition as the pressure reading it compensates.
type FineTemperature int32

// ParseCalibration decodes the 24 byte little endian block starting at 0x88.
func ParseCalibration(buf []byte) (Calibration, error) {
	if len(buf) < calibrationSize {
		return Calibration{}, fmt.Errorf("calibration block too short: %d bytes", len(buf))
	}
	u := func(i int) uint16 { return binary.LittleEndian.Uint16(buf[i : i+2]) }
	s := func(i int) int16 { return int16(u(i)) }
	return Calibration{
		T1: u(0),
		T2: s(2),
		T3: s(4),
		P1: u(6),
		P2: s(8),
		P3: s(10),
		P4: s(12),
		P5: s(14),
		P6: s(16),
		P7: s(18),
		P8: s(20),
		P9: s(22),
	}, nil
}

// CompensateTemperature returns the temperature in hundredths of °C (5123 = 51.23 °C) and the fine temperature.
func CompensateTemperature(cal Calibration, adcT int32) (int32, FineTemperature) {
	t1 := int32(cal.T1)
	var1 := (((adcT >> 3) - (t1 << 1)) * int32(cal.T2)) >> 11
	d := (adcT >> 4) - t1
	var2 := (((d * d) >> 12) * int32(cal.T3)) >> 14
	fine := var1 + var2
	return (fine*5 + 128) >> 8, FineTemperature(fine)
}

// CompensatePressure returns the pressure in Pa as unsigned Q24.8 (24674867 = 96386.2 Pa).
// A zero divisor (blank calibration) yields 0.
func CompensatePressure(cal Calibration, adcP int32, fine FineTemperature) uint32 {
	var1 := int64(fine) - 128000
	var2 := var1 * var1 * int64(cal.P6)
	var2 += (var1 * int64(cal.P5)) << 17
	var2 += int64(cal.P4) << 35
	var1 = ((var1 * var1 * int64(cal.P3)) >> 8) + ((var1 * int64(cal.P2)) << 12)
	var1 = (((int64(1) << 47) + var1) * int64(cal.P1)) >> 33
	if var1 == 0 {
		return 0
	}
	p := 1048576 - int64(adcP)
	p = (((p << 31) - var2) * 3125) / var1
	var1 = (int64(cal.P9) * (p >> 13) * (p >> 13)) >> 25
	var2 = (int64(cal.P8) * p) >> 19
	p = ((p + var1 + var2) >> 8) + (int64(cal.P7) << 4)
	return uint32(p)
}

// Altitude converts pressure in Pa to altitude in meters above the seaLevel reference (Pa).
func Altitude(pressure, seaLevel float64) float64 {
	return 44330.0 * (1.0 - math.Pow(pressure/seaLevel, 1.0/5.255))
}
