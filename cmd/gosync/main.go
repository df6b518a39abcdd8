package main

import (
	"context"

	"github.com/dl-alexandre/gosync/internal/cli"
)

func main() {
	cli.Execute(context.Background())
}
