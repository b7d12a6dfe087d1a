package main

import (
	"fmt"
	"os"

	"github.com/platinummonkey/pastemark/internal/logger"
)

func main() {
	err := Execute()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
