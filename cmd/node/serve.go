package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Ankesh2004/GO-P2PFS/internal/config"
	"github.com/Ankesh2004/GO-P2PFS/internal/server"
	"github.com/Ankesh2004/GO-P2PFS/internal/storage"
	"github.com/Ankesh2004/GO-P2PFS/pkg/p2p"
)

type serveFlags struct {
	confFile string
	self     string
	listen   string
	peers    string
	wipe     bool
	opts     config.Options
}

func newServeCmd(root *rootFlags) *cobra.Command {
	flags := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a node until interrupted",
		Long: `Run a node until SIGINT or SIGTERM.

The node and its peers come either from a peer file:

  node serve --config torrent.conf --self 11:1

or directly from flags:

  node serve --listen 127.0.0.1:8001 --peers 127.0.0.1:8002,127.0.0.1:8003`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), root, flags)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.confFile, "config", config.DefaultConfFile, "peer configuration file")
	f.StringVar(&flags.self, "self", "", "this node in the peer file, as <ip-suffix>:<port-offset>")
	f.StringVar(&flags.listen, "listen", "", "listen address host:port (bypasses the peer file)")
	f.StringVar(&flags.peers, "peers", "", "comma separated peer addresses, used with --listen")
	f.IntVar(&flags.opts.Workers, "workers", config.DefaultWorkers, "connections served concurrently")
	f.Float64Var(&flags.opts.AcceptRate, "accept-rate", 0, "max new connections per second (0 = unlimited)")
	f.IntVar(&flags.opts.AcceptBurst, "accept-burst", 0, "accept burst size (default: workers)")
	f.StringVar(&flags.opts.DataDir, "data-dir", "", "persist files under this directory (default: memory only)")
	f.BoolVar(&flags.wipe, "wipe", false, "delete everything under --data-dir before starting")
	f.StringVar(&flags.opts.KeyFile, "key-file", "", "seal persisted chunks with the key in this file, created if missing")
	return cmd
}

func (f *serveFlags) resolve(root *rootFlags) (config.Options, error) {
	opts := f.opts
	opts.DialTimeout = root.dialTimeout
	opts.IOTimeout = root.ioTimeout
	opts.MaxMessageSize = root.maxMessage

	var err error
	switch {
	case f.listen != "":
		if opts.Self, err = p2p.ParseNode(f.listen); err != nil {
			return opts, fmt.Errorf("--listen: %w", err)
		}
		if opts.Peers, err = config.ParsePeerList(f.peers); err != nil {
			return opts, fmt.Errorf("--peers: %w", err)
		}
	case f.self != "":
		if opts.Self, opts.Peers, err = config.Load(f.confFile, f.self); err != nil {
			return opts, err
		}
	default:
		return opts, errors.New("either --self (with --config) or --listen is required")
	}
	return opts.Defaults(), nil
}

func runServe(ctx context.Context, root *rootFlags, flags *serveFlags) error {
	log, err := root.logger()
	if err != nil {
		return err
	}
	opts, err := flags.resolve(root)
	if err != nil {
		return err
	}

	store, err := openStore(opts, flags.wipe, log)
	if err != nil {
		return err
	}

	s := server.New(opts, store, root.transport(), log)
	if err := s.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info().Msg("shutting down")
	return s.Close()
}

// openStore builds the file store, backed by disk when a data directory is set.
// wipe discards whatever the data directory held.
func openStore(opts config.Options, wipe bool, log zerolog.Logger) (*storage.FileStore, error) {
	if opts.DataDir == "" {
		if wipe {
			return nil, errors.New("--wipe needs --data-dir")
		}
		return storage.NewFileStore(nil), nil
	}

	var sealer *storage.Sealer
	if opts.KeyFile != "" {
		key, created, err := storage.LoadOrGenerateKey(opts.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load key: %w", err)
		}
		if created {
			log.Info().Str("key_file", opts.KeyFile).Msg("generated new storage key")
		}
		if sealer, err = storage.NewSealer(key); err != nil {
			return nil, err
		}
	}

	disk, err := storage.OpenDisk(opts.DataDir, sealer)
	if err != nil {
		return nil, err
	}
	if wipe {
		if err := disk.Wipe(); err != nil {
			return nil, fmt.Errorf("failed to wipe %s: %w", opts.DataDir, err)
		}
		log.Warn().Str("data_dir", opts.DataDir).Msg("stored files wiped")
	}
	files, skipped := disk.Load()
	for _, err := range skipped {
		log.Warn().Err(err).Msg("skipping stored file")
	}

	store := storage.NewFileStore(disk)
	n := store.Restore(files)
	log.Info().Str("data_dir", opts.DataDir).Int("files", n).Msg("storage loaded")
	return store, nil
}
