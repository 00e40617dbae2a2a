package cmd

import (
	"os"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/tileworld-go/internal/logger"
	"github.com/wegman-software/tileworld-go/internal/tilelist"
)

var tilesOutput string

var tilesCmd = &cobra.Command{
	Use:   "tiles",
	Short: "List the tiles a run around the origin would fetch",
	Long: `Print the tiles within the radius of the origin as z/x/y lines, sorted by
zoom, x and y. No access token is needed and nothing is fetched.

The list can be fed to a tile seeding tool or compared with --failed-output
of a generate run.`,
	Args: cobra.NoArgs,
	Run:  runTiles,
}

func init() {
	rootCmd.AddCommand(tilesCmd)

	tilesCmd.Flags().StringVarP(&tilesOutput, "output", "o", "", "Write the list to this file instead of stdout")
}

func runTiles(cmd *cobra.Command, args []string) {
	log := logger.Get()

	if err := cfg.ValidateTiles(); err != nil {
		exitWithError("invalid configuration", err)
	}
	origin, err := cfg.Origin.Point()
	if err != nil {
		exitWithError("invalid configuration", err)
	}

	set := tilelist.New()
	set.AddRadius(origin, cfg.RadiusKm, cfg.MinZoom, cfg.MaxZoom)

	if tilesOutput != "" {
		if err := set.WriteToFile(tilesOutput); err != nil {
			exitWithError("failed to write tile list", err)
		}
		return
	}

	if _, err := set.WriteTo(os.Stdout); err != nil {
		exitWithError("failed to write tile list", err)
	}
	log.Debug("Listed tiles",
		zap.String("origin", origin.String()),
		zap.Int("count", set.Count()))
}
