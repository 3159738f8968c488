package utils

const (
	// SYMTOL is the relative tolerance used when checking operator symmetry
	SYMTOL = 1.e-12
)
