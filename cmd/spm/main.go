package main

import (
	"fmt"
	"os"

	"github.com/example/go-spm/internal/native"
)

func main() {
	err := NewRootCmd().Execute()

	shutdownErr := native.Shutdown()
	if shutdownErr != nil && err == nil {
		err = shutdownErr
	}

	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)

		os.Exit(1)
	}
}
