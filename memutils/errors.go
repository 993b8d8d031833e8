package memutils

import "github.com/pkg/errors"

// PowerOfTwoError is returned from CheckPow2 if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// CorruptionError is returned when a debug margin no longer holds its magic value
var CorruptionError error = errors.New("memory corruption detected around an allocation")
