package main

import (
	"context"
	"fmt"
	"os"

	"nifty-strangler/internal/cli"
)

func main() {
	root, app := cli.NewRootCmd()
	err := root.ExecuteContext(context.Background())
	app.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
