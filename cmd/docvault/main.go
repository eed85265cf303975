// Package main 启动 docvault.
package main

import (
	"os"

	"github.com/yeisme/docvault/pkg/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
