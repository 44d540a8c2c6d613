package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kyleking/segmentsql/cmd"
	"github.com/kyleking/segmentsql/internal/errors"
)

func main() {
	if err := cmd.Execute(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		var structErr *errors.Error
		if errors.As(err, &structErr) {
			for _, s := range structErr.Suggestions {
				fmt.Fprintf(os.Stderr, "  - %s\n", s)
			}
		}

		os.Exit(1)
	}
}
