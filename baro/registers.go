package baro

// DefaultAddress is the 7-bit address with SDO tied low (0xEC/0xED on the wire).
const DefaultAddress = 0x76

// ChipID is the content of the id register of a genuine BMP280.
const ChipID = 0x58

const (
	regCalibration = 0x88
	regChipID      = 0xD0
	regReset       = 0xE0
	regCtrlMeas    = 0xF4
	regConfig      = 0xF5
	regData        = 0xF7
)

const (
	calibrationSize = 24
	dataSize        = 6
)

const (
	resetCommand = 0xB6
	// temperature x4, pressure x16 oversampling, normal mode
	ctrlMeasNormal = 0x73
	// standby 1000 ms, IIR filter 4
	configFilter = 0xA0
)

// DefaultSeaLevelPressure is the standard atmosphere reference in Pa.
const DefaultSeaLevelPressure = 101325.0
