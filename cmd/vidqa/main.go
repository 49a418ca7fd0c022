// Command vidqa fetches video transcripts and answers questions about them
// from the terminal, sharing the server's cache and pipeline.
package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd(openApp).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
