package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/Razee4315/panda-chat/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		if !errors.Is(err, cli.ErrAuditFindings) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}
