// Command dit-put sends a file to a TFTP server.
package main

import (
	"fmt"
	"os"

	"github.com/Joe-Degs/dit"
	"github.com/Joe-Degs/dit/internal/config"
)

func main() {
	opts, opt := config.NewClientOpts("dit-put")
	if err := config.ParseArgs(opt, opts, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "dit-put: %v\n\n%s", err, opt.Help())
		os.Exit(2)
	}

	log, err := opts.Logger("dit-put")
	if err != nil {
		fmt.Fprintf(os.Stderr, "dit-put: %v\n", err)
		os.Exit(2)
	}

	tOpts, err := opts.TransferOptions()
	if err != nil {
		log.Fatalf("%v", err)
	}

	f, err := os.Open(opts.Local)
	if err != nil {
		log.Fatalf("opening %s: %v", opts.Local, err)
	}
	defer f.Close()

	if tOpts.TransferSize != nil {
		if fi, err := f.Stat(); err == nil {
			size := fi.Size()
			tOpts.TransferSize = &size
		}
	}

	if err := dit.Put(opts.RemoteAddress(), opts.Path, tOpts, f, log); err != nil {
		log.Fatalf("put %s to %s: %v", opts.Local, opts.RemoteAddress(), err)
	}
	log.Info("sent %s", opts.Local)
}
