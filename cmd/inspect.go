package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/paulmach/orb/encoding/mvt"
	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/tileworld-go/internal/features"
	"github.com/wegman-software/tileworld-go/internal/geo"
	"github.com/wegman-software/tileworld-go/internal/logger"
	tmvt "github.com/wegman-software/tileworld-go/internal/mvt"
	"github.com/wegman-software/tileworld-go/internal/tilecache"
)

var (
	inspectTile    string
	inspectGeoJSON string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <z/x/y | file.pbf>",
	Short: "Decode one tile and summarize its layers",
	Long: `Decode a single vector tile and print one row per layer: the normalized
name, the kind it maps to, its extent and feature counts by geometry type.
Decoder recoveries are reported for damaged tiles.

The tile is fetched from the configured source when the argument is a tile
address, otherwise it is read from a file. --geojson re-decodes the tile
with a strict decoder and writes the layers as GeoJSON in WGS84; a tile the
strict decoder rejects is reported as such.`,
	Args: cobra.ExactArgs(1),
	Run:  runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().StringVar(&inspectTile, "tile", "", "Tile address of a file argument (z/x/y), needed for --geojson")
	inspectCmd.Flags().StringVar(&inspectGeoJSON, "geojson", "", "Write the layers as a GeoJSON object to this file")
}

func runInspect(cmd *cobra.Command, args []string) {
	log := logger.Get()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	data, addr, err := readTileArg(ctx, args[0])
	if err != nil {
		exitWithError("failed to read tile", err)
	}

	tile := tmvt.Decode(data)
	if err := printLayers(tile); err != nil {
		exitWithError("failed to print layers", err)
	}
	if tile.Diagnostics.Degraded() {
		log.Warn("Tile decoded with recoveries", zap.String("diagnostics", tile.Diagnostics.String()))
	}

	if inspectGeoJSON == "" {
		return
	}
	if addr == nil {
		exitWithError("--geojson needs a tile address; pass --tile for file input", nil)
	}
	if err := writeGeoJSON(data, *addr, inspectGeoJSON); err != nil {
		exitWithError("failed to write geojson", err)
	}
	log.Info("Wrote GeoJSON", zap.String("file", inspectGeoJSON), zap.String("tile", addr.String()))
}

// readTileArg loads the tile named by arg. The address is nil when a file
// is read without --tile.
func readTileArg(ctx context.Context, arg string) ([]byte, *geo.TileAddress, error) {
	if addr, err := geo.ParseTileAddress(arg); err == nil {
		if cfg.AccessToken == "" {
			return nil, nil, fmt.Errorf("fetching %s: access token is not set", addr)
		}
		src, err := buildSource(cfg)
		if err != nil {
			return nil, nil, err
		}
		tr := tilecache.NewHTTPTransport(cfg.RequestTimeout, cfg.MaxRetries)
		data, err := tr.Fetch(ctx, src.TileURL(addr))
		if err != nil {
			return nil, nil, fmt.Errorf("fetching %s: %w", src.Redacted(addr), err)
		}
		return data, &addr, nil
	}

	data, err := os.ReadFile(arg)
	if err != nil {
		return nil, nil, err
	}
	if inspectTile == "" {
		return data, nil, nil
	}
	addr, err := geo.ParseTileAddress(inspectTile)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid --tile: %w", err)
	}
	return data, &addr, nil
}

func printLayers(tile *tmvt.Tile) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LAYER\tRAW NAME\tKIND\tEXTENT\tFEATURES\tGEOMETRY")

	for _, name := range tile.LayerNames() {
		l := tile.Layers[name]
		kind := "unmapped"
		if k, ok := features.KindFromLayer(l.Kind); ok {
			kind = k.String()
		} else if l.Kind == tmvt.KindTerrain {
			kind = "terrain"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			l.Name, l.RawName, kind, l.Extent, len(l.Features), geomSummary(l.Features))
	}
	fmt.Fprintf(w, "total\t\t\t\t%d\t\n", tile.FeatureCount())
	return w.Flush()
}

func geomSummary(fs []*tmvt.Feature) string {
	counts := make(map[string]int)
	for _, f := range fs {
		counts[f.GeomType.String()]++
	}
	parts := make([]string, 0, len(counts))
	for t, n := range counts {
		parts = append(parts, fmt.Sprintf("%s=%d", t, n))
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}

// writeGeoJSON decodes data with orb's strict decoder and writes one
// FeatureCollection per layer in WGS84
func writeGeoJSON(data []byte, addr geo.TileAddress, path string) error {
	layers, err := mvt.Unmarshal(data)
	if err != nil {
		return fmt.Errorf("strict decode failed: %w", err)
	}
	layers.ProjectToWGS84(addr.Maptile())

	b, err := json.MarshalIndent(layers.ToFeatureCollections(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
