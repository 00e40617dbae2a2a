package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/wegman-software/tileworld-go/internal/config"
)

func TestLoadConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "tileworld.yaml")
	yaml := "radius_km: 3\nsource: maptiler\ncache_capacity: 50\norigin: \"48.85,2.35\"\n"
	if err := os.WriteFile(file, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	prevCfg, prevFile, prevEnv, prevOrigin := cfg, configFile, envFiles, originStr
	t.Cleanup(func() {
		cfg, configFile, envFiles, originStr = prevCfg, prevFile, prevEnv, prevOrigin
	})
	cfg = config.DefaultConfig()
	configFile = file
	envFiles = []string{filepath.Join(dir, "missing.env")}
	originStr = ""

	t.Setenv("TILEWORLD_SOURCE", "mapbox-terrain")
	t.Setenv("TILEWORLD_ACCESS_TOKEN", "pk.env")

	c := &cobra.Command{}
	c.Flags().Float64Var(&cfg.RadiusKm, "radius", cfg.RadiusKm, "")
	c.Flags().StringVar(&cfg.AccessToken, "access-token", "", "")
	c.Flags().IntVar(&cfg.CacheCapacity, "cache-capacity", cfg.CacheCapacity, "")
	if err := c.Flags().Parse([]string{"--radius", "5"}); err != nil {
		t.Fatal(err)
	}

	if err := loadConfig(c); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"radius from flag", cfg.RadiusKm, 5.0},
		{"source from env", cfg.Source, "mapbox-terrain"},
		{"token from env", cfg.AccessToken, "pk.env"},
		{"capacity from file", cfg.CacheCapacity, 50},
		{"origin from file", cfg.Origin.String(), "48.85,2.35"},
		{"zoom default", cfg.MaxZoom, uint8(14)},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}
