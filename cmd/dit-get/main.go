// Command dit-get fetches a file from a TFTP server.
package main

import (
	"fmt"
	"os"

	"github.com/Joe-Degs/dit"
	"github.com/Joe-Degs/dit/internal/config"
)

func main() {
	opts, opt := config.NewClientOpts("dit-get")
	if err := config.ParseArgs(opt, opts, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "dit-get: %v\n\n%s", err, opt.Help())
		os.Exit(2)
	}

	log, err := opts.Logger("dit-get")
	if err != nil {
		fmt.Fprintf(os.Stderr, "dit-get: %v\n", err)
		os.Exit(2)
	}

	tOpts, err := opts.TransferOptions()
	if err != nil {
		log.Fatalf("%v", err)
	}

	f, err := os.Create(opts.Local)
	if err != nil {
		log.Fatalf("creating %s: %v", opts.Local, err)
	}
	defer f.Close()

	if err := dit.Get(opts.RemoteAddress(), opts.Path, tOpts, f, log); err != nil {
		os.Remove(opts.Local)
		log.Fatalf("get %s from %s: %v", opts.Path, opts.RemoteAddress(), err)
	}
	log.Info("wrote %s", opts.Local)
}
