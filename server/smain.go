package server

import (
	"fmt"
	"io"
	"os"

	"github.com/Joe-Degs/dit/internal/logx"
)

// Main parses args tftpd-style and runs the standalone server until it
// returns an error (it normally runs forever).
func Main(args []string, stdout io.Writer, stderr io.Writer) error {
	opts, opt := NewOpts()
	opts.outputs(stdout, stderr)

	if _, err := opt.Parse(args); err != nil {
		return err
	}
	if opt.Called("help") {
		fmt.Fprintln(stderr, opt.Help())
		os.Exit(0)
	}
	if opts.Version {
		fmt.Fprintln(stdout, "dit-tftpd (reference fixture server)")
		return nil
	}

	lvl, ok := logx.ParseLevel(opts.Verbosity)
	if !ok {
		lvl = logx.LevelInfo
		if opts.Verbose {
			lvl = logx.LevelDebug
		}
	}
	log := logx.New("tftpd", lvl, stdout, stderr)

	srv, err := newServer(opts, log)
	if err != nil {
		return err
	}
	log.Info("listening on %s", opts.Address)
	return srv.start()
}
