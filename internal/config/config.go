package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Ankesh2004/GO-P2PFS/pkg/p2p"
)

const (
	DefaultWorkers     = 10
	DefaultDialTimeout = 5 * time.Second
	DefaultIOTimeout   = 30 * time.Second
	DefaultConfFile    = "torrent.conf"
)

// Options configures a node.
type Options struct {
	Self  p2p.Node   // where this node listens and how it names itself in search results
	Peers []p2p.Node // every other node, in failover order

	Workers        int           // connections served concurrently
	DialTimeout    time.Duration // outbound connect timeout
	IOTimeout      time.Duration // per read/write deadline on every connection
	MaxMessageSize uint32        // 0 = only the 32-bit frame limit
	AcceptRate     float64       // new connections per second, 0 = unlimited
	AcceptBurst    int

	DataDir string // empty keeps everything in memory
	KeyFile string // empty stores blobs unsealed
}

// Defaults fills in zero-valued tunables.
func (o Options) Defaults() Options {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	if o.IOTimeout <= 0 {
		o.IOTimeout = DefaultIOTimeout
	}
	if o.AcceptRate > 0 && o.AcceptBurst <= 0 {
		o.AcceptBurst = o.Workers
	}
	return o
}

const (
	keyIPPrefix    = "ip-prefix"
	keyPortBase    = "port-base"
	keyIPSuffixes  = "ip-suffixes"
	keyPortOffsets = "port-offsets"
)

var ErrNotInPeerSet = errors.New("local node is not part of the configured peer set")

// PeerFile is the parsed torrent.conf:
//
//	ip-prefix=192.168.1
//	port-base=8000
//	ip-suffixes=10 11 12
//	port-offsets=1 2
type PeerFile struct {
	IPPrefix    string
	PortBase    int
	IPSuffixes  []string
	PortOffsets []int
}

// ParsePeerFile reads the key=value peer configuration.
func ParsePeerFile(r io.Reader) (PeerFile, error) {
	var pf PeerFile
	seen := make(map[string]bool)

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return pf, fmt.Errorf("line %d: expected key=value, got %q", lineNo, line)
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)

		switch key {
		case keyIPPrefix:
			pf.IPPrefix = value
		case keyPortBase:
			base, err := strconv.Atoi(value)
			if err != nil {
				return pf, fmt.Errorf("line %d: %s: %w", lineNo, key, err)
			}
			pf.PortBase = base
		case keyIPSuffixes:
			pf.IPSuffixes = strings.Fields(value)
		case keyPortOffsets:
			for _, f := range strings.Fields(value) {
				off, err := strconv.Atoi(f)
				if err != nil {
					return pf, fmt.Errorf("line %d: %s: %w", lineNo, key, err)
				}
				pf.PortOffsets = append(pf.PortOffsets, off)
			}
		default:
			return pf, fmt.Errorf("line %d: unknown key %q", lineNo, key)
		}
		seen[key] = true
	}
	if err := sc.Err(); err != nil {
		return pf, err
	}

	for _, k := range []string{keyIPPrefix, keyPortBase, keyIPSuffixes, keyPortOffsets} {
		if !seen[k] {
			return pf, fmt.Errorf("missing %s", k)
		}
	}
	return pf, nil
}

// Node builds the address for one suffix/offset pair.
func (pf PeerFile) Node(suffix string, offset int) p2p.Node {
	host := suffix
	if pf.IPPrefix != "" {
		host = pf.IPPrefix + "." + suffix
	}
	return p2p.Node{Host: host, Port: pf.PortBase + offset}
}

// Universe lists every configured node, suffix-major.
func (pf PeerFile) Universe() []p2p.Node {
	nodes := make([]p2p.Node, 0, len(pf.IPSuffixes)*len(pf.PortOffsets))
	for _, suffix := range pf.IPSuffixes {
		for _, off := range pf.PortOffsets {
			nodes = append(nodes, pf.Node(suffix, off))
		}
	}
	return nodes
}

// Split resolves the local node from "<ip-suffix>:<port-offset>" and returns it along with
// every other configured node.
func (pf PeerFile) Split(local string) (p2p.Node, []p2p.Node, error) {
	suffix, offStr, ok := strings.Cut(local, ":")
	if !ok {
		return p2p.Node{}, nil, fmt.Errorf("expected <ip-suffix>:<port-offset>, got %q", local)
	}
	off, err := strconv.Atoi(offStr)
	if err != nil {
		return p2p.Node{}, nil, fmt.Errorf("invalid port offset %q: %w", offStr, err)
	}
	self := pf.Node(suffix, off)

	var peers []p2p.Node
	found := false
	for _, n := range pf.Universe() {
		if n == self {
			found = true
			continue
		}
		peers = append(peers, n)
	}
	if !found {
		return p2p.Node{}, nil, fmt.Errorf("%w: %s", ErrNotInPeerSet, self)
	}
	return self, peers, nil
}

// Load reads a peer file and splits out the local node.
func Load(path, local string) (p2p.Node, []p2p.Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return p2p.Node{}, nil, err
	}
	defer f.Close()

	pf, err := ParsePeerFile(f)
	if err != nil {
		return p2p.Node{}, nil, fmt.Errorf("%s: %w", path, err)
	}
	return pf.Split(local)
}

// ParsePeerList parses a comma separated host:port list.
func ParsePeerList(list string) ([]p2p.Node, error) {
	var peers []p2p.Node
	for _, addr := range strings.Split(list, ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		n, err := p2p.ParseNode(addr)
		if err != nil {
			return nil, err
		}
		peers = append(peers, n)
	}
	return peers, nil
}
