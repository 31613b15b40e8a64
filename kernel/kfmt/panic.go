package kfmt

import "vmkernel/kernel"

// haltFn is invoked after a panic message has been emitted. It is a
// function variable so tests can observe that a panic occurred without
// halting the test binary.
var haltFn = func() {
	select {}
}

// Panic prints a diagnostic for e and halts the CPU. e may be a
// *kernel.Error, an error, or a string; any other type is printed via
// its %s-equivalent best effort.
func Panic(e interface{}) {
	switch err := e.(type) {
	case *kernel.Error:
		Printf("panic: [%s] %s\n", err.Module, err.Message)
	case error:
		Printf("panic: %s\n", err.Error())
	case string:
		Printf("panic: %s\n", err)
	default:
		Printf("panic: unknown error value\n")
	}

	haltFn()
}
