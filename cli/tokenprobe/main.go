package main

import (
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"

	tokenprobecmder "github.com/papercomputeco/tokenprobe/cmd/tokenprobe"
	"github.com/papercomputeco/tokenprobe/pkg/cliui"
)

func main() {
	cmd := tokenprobecmder.NewTokenprobeCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\n  %s %v\n", cliui.FailMark, err)
		os.Exit(1)
	}
}
