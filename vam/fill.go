package vam

const (
	createdFillPattern   uint8 = 0xDC
	destroyedFillPattern uint8 = 0xEF
)
