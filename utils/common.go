package utils

const (
	// NODETOL is the relative tolerance below which an element volume is
	// treated as zero.
	NODETOL = 1.e-12
)
