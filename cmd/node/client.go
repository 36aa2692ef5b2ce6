package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Ankesh2004/GO-P2PFS/internal/server"
	"github.com/Ankesh2004/GO-P2PFS/pkg/p2p"
)

// clientCmd wraps a subcommand that talks to one node given as its first argument.
func clientCmd(root *rootFlags, cmd *cobra.Command, run func(ctx context.Context, c *server.Client, node p2p.Node, args []string, out io.Writer) error) *cobra.Command {
	cmd.SilenceUsage = true
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		node, err := parseNodeArg(args[0])
		if err != nil {
			return err
		}
		client := server.NewClient(root.transport())
		return run(cmd.Context(), client, node, args[1:], cmd.OutOrStdout())
	}
	return cmd
}

func statusError(op string, st p2p.Status) error {
	if st == p2p.StatusSuccess {
		return nil
	}
	return fmt.Errorf("%s failed: %s", op, st)
}

func parseHashArg(arg string) ([]byte, error) {
	h, err := hex.DecodeString(arg)
	if err != nil || len(h) != p2p.HashSize {
		return nil, fmt.Errorf("invalid file hash %q: expected %d hex-encoded bytes", arg, p2p.HashSize)
	}
	return h, nil
}

// writeOutput writes data to path, or to out when path is empty or "-".
func writeOutput(path string, data []byte, out io.Writer) error {
	if path == "" || path == "-" {
		_, err := out.Write(data)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func printFileInfo(out io.Writer, indent string, fi p2p.FileInfo) {
	fmt.Fprintf(out, "%s%s  %s  %d bytes  %d chunks\n", indent, p2p.HashString(fi.Hash), fi.Filename, fi.Size, len(fi.Chunks))
}

// -------- upload / download / chunk --------

func newUploadCmd(root *rootFlags) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "upload <node> <path>",
		Short: "Store a local file on a node",
		Args:  cobra.ExactArgs(2),
	}
	cmd.Flags().StringVar(&name, "name", "", "filename to store under (default: base name of path)")

	return clientCmd(root, cmd, func(ctx context.Context, c *server.Client, node p2p.Node, args []string, out io.Writer) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		if name == "" {
			name = filepath.Base(args[0])
		}
		resp, err := c.Upload(ctx, node, name, data)
		if err != nil {
			return err
		}
		if err := statusError("upload", resp.Status); err != nil {
			return err
		}
		if resp.FileInfo != nil {
			printFileInfo(out, "", *resp.FileInfo)
		}
		return nil
	})
}

func newDownloadCmd(root *rootFlags) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "download <node> <file-hash>",
		Short: "Fetch a whole file by its hash",
		Args:  cobra.ExactArgs(2),
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this path instead of stdout")

	return clientCmd(root, cmd, func(ctx context.Context, c *server.Client, node p2p.Node, args []string, out io.Writer) error {
		hash, err := parseHashArg(args[0])
		if err != nil {
			return err
		}
		resp, err := c.Download(ctx, node, hash)
		if err != nil {
			return err
		}
		if err := statusError("download", resp.Status); err != nil {
			return err
		}
		return writeOutput(output, resp.Data, out)
	})
}

func newChunkCmd(root *rootFlags) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "chunk <node> <file-hash> <index>",
		Short: "Fetch a single chunk of a file",
		Args:  cobra.ExactArgs(3),
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this path instead of stdout")

	return clientCmd(root, cmd, func(ctx context.Context, c *server.Client, node p2p.Node, args []string, out io.Writer) error {
		hash, err := parseHashArg(args[0])
		if err != nil {
			return err
		}
		index, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid chunk index %q: %w", args[1], err)
		}
		resp, err := c.Chunk(ctx, node, hash, index)
		if err != nil {
			return err
		}
		if err := statusError("chunk", resp.Status); err != nil {
			return err
		}
		return writeOutput(output, resp.Data, out)
	})
}

// -------- search --------

func newLocalSearchCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "local-search <node> <regex>",
		Short: "List files on one node whose whole name matches regex",
		Args:  cobra.ExactArgs(2),
	}
	return clientCmd(root, cmd, func(ctx context.Context, c *server.Client, node p2p.Node, args []string, out io.Writer) error {
		resp, err := c.LocalSearch(ctx, node, args[0])
		if err != nil {
			return err
		}
		if err := statusError("local search", resp.Status); err != nil {
			return err
		}
		for _, fi := range resp.FileInfo {
			printFileInfo(out, "", fi)
		}
		return nil
	})
}

func newSearchCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <node> <regex>",
		Short: "Search a node and all of its peers",
		Args:  cobra.ExactArgs(2),
	}
	return clientCmd(root, cmd, func(ctx context.Context, c *server.Client, node p2p.Node, args []string, out io.Writer) error {
		resp, err := c.Search(ctx, node, args[0])
		if err != nil {
			return err
		}
		if err := statusError("search", resp.Status); err != nil {
			return err
		}
		for _, r := range resp.Results {
			fmt.Fprintf(out, "%s (%d files)\n", r.Node, len(r.Files))
			for _, fi := range r.Files {
				printFileInfo(out, "  ", fi)
			}
		}
		return nil
	})
}

// -------- replicate --------

func newReplicateCmd(root *rootFlags) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "replicate <node> <filename>",
		Short: "Make a node pull a file from its peers",
		Long: `Make a node pull a file from its peers.

The file's hash and chunk list are looked up on --source first, then sent to
<node> in a replicate request.`,
		Args: cobra.ExactArgs(2),
	}
	cmd.Flags().StringVar(&source, "source", "", "node that already has the file (required)")
	cmd.MarkFlagRequired("source")

	return clientCmd(root, cmd, func(ctx context.Context, c *server.Client, node p2p.Node, args []string, out io.Writer) error {
		src, err := parseNodeArg(source)
		if err != nil {
			return err
		}
		filename := args[0]

		found, err := c.LocalSearch(ctx, src, regexp.QuoteMeta(filename))
		if err != nil {
			return err
		}
		if err := statusError("lookup on "+src.String(), found.Status); err != nil {
			return err
		}
		if len(found.FileInfo) != 1 {
			return fmt.Errorf("%s does not have %q", src, filename)
		}

		resp, err := c.Replicate(ctx, node, found.FileInfo[0])
		if err != nil {
			return err
		}
		for _, st := range resp.NodeStatusList {
			fmt.Fprintf(out, "chunk %d  %s  %s\n", st.ChunkIndex, st.Node, st.Status)
		}
		return statusError("replicate", resp.Status)
	})
}
