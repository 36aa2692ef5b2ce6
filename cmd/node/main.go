package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Ankesh2004/GO-P2PFS/internal/logging"
	"github.com/Ankesh2004/GO-P2PFS/pkg/p2p"
)

type rootFlags struct {
	logLevel    string
	logJSON     bool
	dialTimeout time.Duration
	ioTimeout   time.Duration
	maxMessage  uint32
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:          "node",
		Short:        "Peer-to-peer file sharing node",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: trace|debug|info|warn|error|off (default $"+logging.EnvLogLevel+" or info)")
	pf.BoolVar(&flags.logJSON, "log-json", false, "write logs as JSON instead of console text")
	pf.DurationVar(&flags.dialTimeout, "dial-timeout", 5*time.Second, "timeout for connecting to a node")
	pf.DurationVar(&flags.ioTimeout, "io-timeout", 30*time.Second, "read/write deadline on every connection")
	pf.Uint32Var(&flags.maxMessage, "max-message-size", 0, "largest accepted frame in bytes (0 = no limit below 4GiB)")

	root.AddCommand(
		newServeCmd(flags),
		newUploadCmd(flags),
		newDownloadCmd(flags),
		newChunkCmd(flags),
		newLocalSearchCmd(flags),
		newSearchCmd(flags),
		newReplicateCmd(flags),
	)
	return root
}

func (f *rootFlags) logger() (zerolog.Logger, error) {
	level, err := logging.ParseLevel(f.logLevel, zerolog.InfoLevel)
	if err != nil {
		return zerolog.Nop(), err
	}
	return logging.New(os.Stderr, level, f.logJSON), nil
}

func (f *rootFlags) transport() *p2p.TCPTransport {
	return p2p.NewTCPTransport(p2p.TCPTransportOptions{
		DialTimeout:    f.dialTimeout,
		IOTimeout:      f.ioTimeout,
		MaxMessageSize: f.maxMessage,
	})
}

func parseNodeArg(arg string) (p2p.Node, error) {
	n, err := p2p.ParseNode(arg)
	if err != nil {
		return p2p.Node{}, fmt.Errorf("invalid node address %q: %w", arg, err)
	}
	return n, nil
}
