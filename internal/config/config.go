// Package config turns command-line flags into the TransferOptions and
// connection parameters the client CLIs need, using the same flag library
// the reference tftpd server uses.
package config

import (
	"fmt"
	"os"

	"github.com/DavidGamba/go-getoptions"

	"github.com/Joe-Degs/dit"
	"github.com/Joe-Degs/dit/internal/logx"
)

// ClientOpts are the flags shared by dit-get and dit-put.
type ClientOpts struct {
	Remote  string // positional: host[:port]
	Path    string // positional: remote filename
	Local   string // --output|-o|-i, the local file for both get and put

	Mode      string // --mode|-m netascii|octet
	BlockSize int    // --blksize|-b
	Timeout   int    // --timeout|-t resend timeout, ms
	TSize     bool   // --tsize request transfer size
	Rollover  string // --rollover none|zero|one

	Verbosity string // --verbosity debug|info|warn|error|silent
	Help      bool
}

// NewClientOpts builds the getoptions parser for a client CLI, binding
// flags into a ClientOpts.
func NewClientOpts(programName string) (*ClientOpts, *getoptions.GetOpt) {
	var o ClientOpts
	opt := getoptions.New()
	opt.SetMode(getoptions.Bundling)
	opt.Self(programName, "a minimal TFTP client")

	opt.Bool("help", false, opt.Alias("h", "?"))
	opt.StringVar(&o.Local, "output", "", opt.Alias("o", "i"), opt.Description("local file path; defaults to the remote filename"))
	opt.StringVar(&o.Mode, "mode", "octet", opt.Alias("m"), opt.Description("transfer mode: netascii or octet"))
	opt.IntVar(&o.BlockSize, "blksize", dit.DefaultBlockSize, opt.Alias("b"), opt.Description("requested DATA payload size in bytes, 8-65464"))
	opt.IntVar(&o.Timeout, "timeout", 0, opt.Alias("t"), opt.Description("requested resend timeout in milliseconds; 0 uses the protocol default"))
	opt.BoolVar(&o.TSize, "tsize", false, opt.Description("negotiate the RFC2349 transfer-size option"))
	opt.StringVar(&o.Rollover, "rollover", "", opt.Description("block counter rollover behaviour: zero or one"))
	opt.StringVar(&o.Verbosity, "verbosity", "warn", opt.Description("log level: debug, info, warn, error, silent"))

	return &o, opt
}

// ParseArgs runs getoptions against args (normally os.Args[1:]) and expects
// exactly two remaining positional arguments: remote host[:port] and the
// remote path.
func ParseArgs(opt *getoptions.GetOpt, o *ClientOpts, args []string) error {
	remaining, err := opt.Parse(args)
	if err != nil {
		return err
	}
	if opt.Called("help") {
		fmt.Fprint(os.Stdout, opt.Help())
		os.Exit(0)
	}
	if len(remaining) != 2 {
		return fmt.Errorf("expected <host[:port]> <remote-path>, got %d argument(s)", len(remaining))
	}
	o.Remote = remaining[0]
	o.Path = remaining[1]
	if o.Local == "" {
		o.Local = o.Path
	}
	return nil
}

// defaultPort is appended to Remote when it carries no port of its own.
const defaultPort = "69"

// TransferOptions translates the parsed flags into a dit.TransferOptions,
// leaving unset fields at dit's protocol defaults.
func (o *ClientOpts) TransferOptions() (dit.TransferOptions, error) {
	t := dit.DefaultTransferOptions()

	mode, err := dit.ParseMode(o.Mode)
	if err != nil {
		return t, err
	}
	t.Mode = mode

	if o.BlockSize != 0 {
		t.BlockSize = o.BlockSize
	}
	if o.Timeout != 0 {
		t.ResendTimeoutMS = o.Timeout
	}
	if o.TSize {
		var zero int64
		t.TransferSize = &zero
	}
	if o.Rollover != "" {
		r, ok := dit.ParseRolloverFlag(o.Rollover)
		if !ok {
			return t, fmt.Errorf("unknown rollover mode %q", o.Rollover)
		}
		t.Rollover = r
	}
	return t, nil
}

// Logger builds the leveled logger ParseArgs' Verbosity flag selects.
func (o *ClientOpts) Logger(prefix string) (*logx.Logger, error) {
	lvl, ok := logx.ParseLevel(o.Verbosity)
	if !ok {
		return nil, fmt.Errorf("unknown verbosity %q", o.Verbosity)
	}
	return logx.Default(prefix, lvl), nil
}

// RemoteAddress appends the default TFTP port to Remote when it lacks one.
func (o *ClientOpts) RemoteAddress() string {
	for i := len(o.Remote) - 1; i >= 0; i-- {
		switch o.Remote[i] {
		case ':':
			return o.Remote
		case ']':
			return o.Remote + ":" + defaultPort
		}
	}
	return o.Remote + ":" + defaultPort
}
