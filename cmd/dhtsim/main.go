// Command dhtsim drives a Chord or Pastry simulation over an abstract
// network fabric: it builds num_nodes nodes, joins them one at a time,
// stores and searches keys, and prints a hop-count histogram at the
// end. Two positional arguments are load-bearing for legacy
// compatibility: num_nodes and read_from_file (0/1); everything else
// is a flag.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mod/dhtsim/internal/config"
	"github.com/mod/dhtsim/internal/simlog"
	"github.com/mod/dhtsim/pkg/chord"
	"github.com/mod/dhtsim/pkg/core"
	"github.com/mod/dhtsim/pkg/fabric"
	"github.com/mod/dhtsim/pkg/metrics"
	"github.com/mod/dhtsim/pkg/pastry"
	"github.com/mod/dhtsim/pkg/store"
)

var (
	flagSwitches int
	flagProtocol string
	flagConfig   string
	flagPersist  string
	flagSeed     int64
	flagVerbose  bool
	flagSVGOut   string
)

func main() {
	// Legacy behavior: the original driver took exactly two positional
	// arguments and printed help (exit 0) if invoked with only one.
	if len(os.Args) == 2 {
		printHelp()
		os.Exit(0)
	}

	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println("usage: dhtsim <num_nodes> <read_from_file> [flags]")
	fmt.Println("  num_nodes       number of DHT nodes to build")
	fmt.Println("  read_from_file  1 to read links.dat, 0 to generate a fresh fabric")
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dhtsim <num_nodes> <read_from_file>",
		Short: "Simulate a Chord or Pastry DHT over a synthetic network fabric",
		Args:  cobra.ExactArgs(2),
		RunE:  runSimulation,
	}
	cmd.Flags().IntVar(&flagSwitches, "switches", 100, "number of fabric switches")
	cmd.Flags().StringVar(&flagProtocol, "protocol", "both", "dht protocol: chord, pastry, or both")
	cmd.Flags().StringVar(&flagConfig, "config", "", "optional YAML config file")
	cmd.Flags().StringVar(&flagPersist, "persist", "", "DuckDB DSN to record run events to (empty disables)")
	cmd.Flags().Int64Var(&flagSeed, "seed", 1, "random seed")
	cmd.Flags().BoolVar(&flagVerbose, "verbose", false, "debug-level per-hop logging")
	cmd.Flags().StringVar(&flagSVGOut, "svg-out", "", "write the hop-count histogram as an SVG bar chart to this path (empty disables)")
	return cmd
}

func runSimulation(cmd *cobra.Command, args []string) error {
	numNodes, err := strconv.Atoi(args[0])
	if err != nil || numNodes <= 0 {
		return fmt.Errorf("dhtsim: num_nodes must be a positive integer, got %q", args[0])
	}
	readFromFile := args[1] == "1"

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("switches") {
		cfg.Switches = flagSwitches
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = flagSeed
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = flagVerbose
	}
	if cmd.Flags().Changed("persist") {
		cfg.PersistDSN = flagPersist
	}

	logger, err := simlog.New(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("dhtsim: build logger: %w", err)
	}
	defer logger.Sync()

	var db *store.Store
	runID := uuid.NewString()
	if cfg.PersistDSN != "" {
		db, err = store.Open(cfg.PersistDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.BeginRun(runID, flagProtocol, numNodes, cfg.Switches, time.Now()); err != nil {
			return err
		}
	}

	switch flagProtocol {
	case "chord":
		net, err := buildFabric(cfg, readFromFile)
		if err != nil {
			return err
		}
		if !readFromFile {
			if err := net.WriteLinkFile(cfg.LinkFile); err != nil {
				return fmt.Errorf("dhtsim: write link file: %w", err)
			}
		}
		rng := rand.New(rand.NewSource(cfg.Seed))
		return runChord(logger, db, runID, net, cfg, numNodes, rng, flagSVGOut)
	case "pastry":
		net, err := buildFabric(cfg, readFromFile)
		if err != nil {
			return err
		}
		if !readFromFile {
			if err := net.WriteLinkFile(cfg.LinkFile); err != nil {
				return fmt.Errorf("dhtsim: write link file: %w", err)
			}
		}
		rng := rand.New(rand.NewSource(cfg.Seed))
		return runPastry(logger, db, runID, net, cfg, numNodes, rng, flagSVGOut)
	case "both":
		return runBoth(logger, db, runID, cfg, readFromFile, numNodes, flagSVGOut)
	default:
		return fmt.Errorf("dhtsim: unknown --protocol %q, want chord, pastry, or both", flagProtocol)
	}
}

// runBoth runs Chord and Pastry back to back over the same shared
// switch topology (spec.md §1's "shared abstract network substrate"):
// the first fabric is generated or read from links.dat as usual, then
// the second is built from that same link file so both protocols route
// over an identical switch graph while keeping separate node
// membership. Their histograms use different bin layouts (Chord 0-12,
// Pastry 0-10) and are reported separately rather than merged.
func runBoth(logger *zap.Logger, db *store.Store, runID string, cfg config.Config, readFromFile bool, numNodes int, svgOut string) error {
	chordNet, err := buildFabric(cfg, readFromFile)
	if err != nil {
		return err
	}
	if !readFromFile {
		if err := chordNet.WriteLinkFile(cfg.LinkFile); err != nil {
			return fmt.Errorf("dhtsim: write link file: %w", err)
		}
	}
	pastryNet, err := fabric.NewFromLinkFile(cfg.Switches, cfg.LinkFile)
	if err != nil {
		return fmt.Errorf("dhtsim: build pastry fabric from shared topology: %w", err)
	}

	chordRNG := rand.New(rand.NewSource(cfg.Seed))
	pastryRNG := rand.New(rand.NewSource(cfg.Seed + 1))

	if err := runChord(logger, db, runID, chordNet, cfg, numNodes, chordRNG, svgOutPath(svgOut, "chord")); err != nil {
		return err
	}
	return runPastry(logger, db, runID, pastryNet, cfg, numNodes, pastryRNG, svgOutPath(svgOut, "pastry"))
}

// svgOutPath inserts a protocol suffix ahead of path's extension so
// --protocol=both doesn't let one run's SVG clobber the other's. An
// empty path stays empty (SVG output disabled).
func svgOutPath(path, protocol string) string {
	if path == "" {
		return ""
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return fmt.Sprintf("%s-%s%s", base, protocol, ext)
}

func buildFabric(cfg config.Config, readFromFile bool) (*fabric.Network, error) {
	if readFromFile {
		return fabric.NewFromLinkFile(cfg.Switches, cfg.LinkFile)
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	return fabric.New(cfg.Switches, rng), nil
}

func runChord(logger *zap.Logger, db *store.Store, runID string, net *fabric.Network, cfg config.Config, numNodes int, rng *rand.Rand, svgOut string) error {
	logger = simlog.ForProtocol(logger, "chord")
	hist := metrics.NewChordHistogram()
	nodes := make([]*chord.Node, 0, numNodes)

	for i := 0; i < numNodes; i++ {
		id := nextFreeID(net, core.RingSize(cfg.ChordBits), rng)
		n := chord.NewNode(id, cfg.ChordBits, net)
		if err := net.AddNode(id, n); err != nil {
			logger.Warn("add node failed", zap.Error(err))
			continue
		}
		nodeLog := simlog.ForNode(logger, uint64(id))
		if err := n.Join(); err != nil {
			nodeLog.Warn("join failed", zap.Error(err))
		}
		nodeLog.Info("node joined")
		recordEvent(db, runID, "join", uint64(id), "", -1)
		nodes = append(nodes, n)
	}

	for i := 0; i < 100 && len(nodes) > 0; i++ {
		key := fmt.Sprintf("key-%d", i)
		storer := nodes[rng.Intn(len(nodes))]
		hops, err := storer.StoreKey(key, i)
		if err != nil {
			logger.Debug("store_key skipped", zap.String("key", key), zap.Error(err))
			continue
		}
		recordEvent(db, runID, "store", uint64(storer.ID()), key, hops)
	}

	for _, n := range nodes {
		for i := 0; i < 100; i++ {
			key := fmt.Sprintf("key-%d", i)
			hops, _, found := n.Search(key)
			hist.Record(hops)
			recordEvent(db, runID, "search", uint64(n.ID()), key, hops)
			if !found {
				logger.Debug("search miss", zap.String("key", key))
			}
		}
	}

	if err := writeSVGHistogram(hist, svgOut); err != nil {
		return err
	}
	return hist.WriteTable(os.Stdout)
}

func runPastry(logger *zap.Logger, db *store.Store, runID string, net *fabric.Network, cfg config.Config, numNodes int, rng *rand.Rand, svgOut string) error {
	logger = simlog.ForProtocol(logger, "pastry")
	hist := metrics.NewPastryHistogram()
	nodes := make([]*pastry.Node, 0, numNodes)

	for i := 0; i < numNodes; i++ {
		id := nextFreeID(net, core.HexRingSize(cfg.PastryDigits), rng)
		n := pastry.NewNode(id, cfg.PastryDigits, cfg.PastryBase, net)
		if err := net.AddNode(id, n); err != nil {
			logger.Warn("add node failed", zap.Error(err))
			continue
		}
		nodeLog := simlog.ForNode(logger, uint64(id))
		if err := n.Join(); err != nil {
			nodeLog.Warn("join failed", zap.Error(err))
		}
		nodeLog.Info("node joined")
		recordEvent(db, runID, "join", uint64(id), "", -1)
		nodes = append(nodes, n)
	}

	for _, target := range nodes {
		for _, n := range nodes {
			hops, _, found := n.SearchID(target.ID())
			hist.Record(hops)
			recordEvent(db, runID, "search", uint64(n.ID()), fmt.Sprintf("%x", uint64(target.ID())), hops)
			if !found {
				logger.Debug("search miss", zap.Uint64("target", uint64(target.ID())))
			}
		}
	}

	if err := writeSVGHistogram(hist, svgOut); err != nil {
		return err
	}
	return hist.WriteTable(os.Stdout)
}

// writeSVGHistogram renders hist to path as a bar chart, the plotting
// step the driver delegates to as an external collaborator. An empty
// path disables it.
func writeSVGHistogram(hist *metrics.Histogram, path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("dhtsim: create svg output: %w", err)
	}
	defer f.Close()
	hist.RenderSVG(f)
	return nil
}

func recordEvent(db *store.Store, runID, kind string, nodeID uint64, detail string, hops int) {
	if db == nil {
		return
	}
	_ = db.RecordEvent(runID, kind, nodeID, detail, hops, time.Now())
}

// nextFreeID hashes random integers drawn from rng until an id not
// already registered with the fabric is found, retrying past any hash
// collision rather than failing the node's construction. Ids are not
// derived from node ordinals.
func nextFreeID(net *fabric.Network, ringSize core.ID, rng *rand.Rand) core.ID {
	for {
		candidate := core.HashToRing(strconv.Itoa(rng.Int()), ringSize)
		if _, exists := net.GetNode(candidate); !exists {
			return candidate
		}
	}
}
