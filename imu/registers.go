package imu

// DefaultAddress is the 7-bit address with AD0 pulled high (0xD2/0xD3 on the wire).
const DefaultAddress = 0x69

// WhoAmI is the identity register content of an MPU9250.
const WhoAmI = 0x71

const (
	regSmplrtDiv   = 0x19
	regConfig      = 0x1A
	regGyroConfig  = 0x1B
	regAccelConfig = 0x1C
	regAccelXoutH  = 0x3B
	regPwrMgmt1    = 0x6B
	regWhoAmI      = 0x75
)

// accel xyz, temp, gyro xyz, big endian
const dataSize = 14

// initSequence is written in order by Init.
var initSequence = []struct {
	reg   byte
	value byte
	what  string
}{
	{regPwrMgmt1, 0x00, "wake up"},
	// 1 kHz / (7+1) = 125 Hz
	{regSmplrtDiv, 0x07, "sample rate divider"},
	// 5 Hz low pass
	{regConfig, 0x06, "config"},
	// ±250 °/s
	{regGyroConfig, 0x00, "gyro config"},
	// ±2 g
	{regAccelConfig, 0x00, "accel config"},
}
