package cpu

// NumRegisters is the size of the register file, MIPS32 convention.
const NumRegisters = 32

// Register numbers. Mirrors the names the compiler emits by.
const (
	RegZero int32 = 0
	RegAT   int32 = 1
	RegV0   int32 = 2
	RegV1   int32 = 3
	RegA0   int32 = 4
	RegA1   int32 = 5
	RegA2   int32 = 6
	RegA3   int32 = 7
	RegT0   int32 = 8
	RegT1   int32 = 9
	RegT2   int32 = 10
	RegT3   int32 = 11
	RegT4   int32 = 12
	RegT5   int32 = 13
	RegT6   int32 = 14
	RegT7   int32 = 15
	RegS0   int32 = 16
	RegS1   int32 = 17
	RegS2   int32 = 18
	RegS3   int32 = 19
	RegS4   int32 = 20
	RegS5   int32 = 21
	RegS6   int32 = 22
	RegS7   int32 = 23
	RegT8   int32 = 24
	RegT9   int32 = 25
	RegK0   int32 = 26
	RegK1   int32 = 27
	RegGP   int32 = 28
	RegSP   int32 = 29
	RegFP   int32 = 30
	RegRA   int32 = 31
)
