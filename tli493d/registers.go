package tli493d

// Register addresses. Bx, By, Bz and temperature are split between an upper
// register holding bits [11:4] and a shared lower register.
const (
	regBX     byte = 0x00
	regBY     byte = 0x01
	regBZ     byte = 0x02
	regTemp   byte = 0x03
	regBX2    byte = 0x04
	regTemp2  byte = 0x05
	regDiag   byte = 0x06
	regXL     byte = 0x07
	regXH     byte = 0x08
	regYL     byte = 0x09
	regYH     byte = 0x0A
	regZL     byte = 0x0B
	regZH     byte = 0x0C
	regWU     byte = 0x0D
	regTMode  byte = 0x0E
	regTPhase byte = 0x0F
	regConfig byte = 0x10
	regMOD1   byte = 0x11
	regMOD2   byte = 0x13
	regMOD3   byte = 0x14
	regVer    byte = 0x16

	registerCount = 0x17
	// diagnosisLength covers the measurement registers and DIAG.
	diagnosisLength = 7
)

type field uint8

const (
	fieldBX1 field = iota
	fieldBX2
	fieldBY1
	fieldBY2
	fieldBZ1
	fieldBZ2
	fieldTemp1
	fieldTemp2
	fieldChannel
	fieldBusParity
	fieldFuseFlag
	fieldConfigFlag
	fieldTestMode
	fieldPD3
	fieldPD0
	fieldFrameCounter
	fieldXL
	fieldXH
	fieldYL
	fieldYH
	fieldZL
	fieldZH
	fieldWakeUpActive
	fieldWakeUp
	fieldXH2
	fieldXL2
	fieldTestSelect
	fieldYH2
	fieldYL2
	fieldPhase
	fieldZH2
	fieldZL2
	fieldDisableTemp
	fieldDisableBz
	fieldTrigger
	fieldShortRange
	fieldTempCompensation
	fieldConfigParity
	fieldFuseParity
	fieldAddress
	fieldProtocol
	fieldCollisionAvoidance
	fieldInterrupt
	fieldMode
	fieldUpdateRate
	fieldExtraShortRange
	fieldType
	fieldHardwareVersion
	fieldCount
)

type bitField struct {
	reg    byte
	offset uint8
	width  uint8
}

func (b bitField) mask() byte {
	return byte(1<<b.width-1) << b.offset
}

// fieldMap is the W2BW register layout; no field crosses a register boundary.
var fieldMap = [fieldCount]bitField{
	fieldBX1:                {regBX, 0, 8},
	fieldBX2:                {regBX2, 4, 4},
	fieldBY1:                {regBY, 0, 8},
	fieldBY2:                {regBX2, 0, 4},
	fieldBZ1:                {regBZ, 0, 8},
	fieldBZ2:                {regTemp2, 0, 4},
	fieldTemp1:              {regTemp, 0, 8},
	fieldTemp2:              {regTemp2, 6, 2},
	fieldChannel:            {regTemp2, 4, 2},
	fieldBusParity:          {regDiag, 7, 1},
	fieldFuseFlag:           {regDiag, 6, 1},
	fieldConfigFlag:         {regDiag, 5, 1},
	fieldTestMode:           {regDiag, 4, 1},
	fieldPD3:                {regDiag, 3, 1},
	fieldPD0:                {regDiag, 2, 1},
	fieldFrameCounter:       {regDiag, 0, 2},
	fieldXL:                 {regXL, 0, 8},
	fieldXH:                 {regXH, 0, 8},
	fieldYL:                 {regYL, 0, 8},
	fieldYH:                 {regYH, 0, 8},
	fieldZL:                 {regZL, 0, 8},
	fieldZH:                 {regZH, 0, 8},
	fieldWakeUpActive:       {regWU, 7, 1},
	fieldWakeUp:             {regWU, 6, 1},
	fieldXH2:                {regWU, 3, 3},
	fieldXL2:                {regWU, 0, 3},
	fieldTestSelect:         {regTMode, 6, 2},
	fieldYH2:                {regTMode, 3, 3},
	fieldYL2:                {regTMode, 0, 3},
	fieldPhase:              {regTPhase, 6, 2},
	fieldZH2:                {regTPhase, 3, 3},
	fieldZL2:                {regTPhase, 0, 3},
	fieldDisableTemp:        {regConfig, 7, 1},
	fieldDisableBz:          {regConfig, 6, 1},
	fieldTrigger:            {regConfig, 4, 2},
	fieldShortRange:         {regConfig, 3, 1},
	fieldTempCompensation:   {regConfig, 1, 2},
	fieldConfigParity:       {regConfig, 0, 1},
	fieldFuseParity:         {regMOD1, 7, 1},
	fieldAddress:            {regMOD1, 5, 2},
	fieldProtocol:           {regMOD1, 4, 1},
	fieldCollisionAvoidance: {regMOD1, 3, 1},
	fieldInterrupt:          {regMOD1, 2, 1},
	fieldMode:               {regMOD1, 0, 2},
	fieldUpdateRate:         {regMOD2, 5, 3},
	fieldExtraShortRange:    {regMOD3, 0, 1},
	fieldType:               {regVer, 4, 2},
	fieldHardwareVersion:    {regVer, 0, 4},
}

// writable reports whether the host may write reg.
func writable(reg int) bool {
	switch {
	case reg >= int(regXL) && reg <= int(regMOD1):
		return true
	case reg == int(regMOD2), reg == int(regMOD3):
		return true
	}
	return false
}

// readOnlyMask returns bits of a writable register the device never takes from the host.
func readOnlyMask(reg int) byte {
	if reg == int(regWU) {
		return fieldMap[fieldWakeUpActive].mask()
	}
	return 0
}
