// Package report writes the per-point and per-tower CSV tables of a run,
// together with the .csvt field-type sidecars GIS tools use when joining them.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"rfcoverage/internal/types"
)

// Layout locates the output files of a run.
type Layout struct {
	// Dir is the output directory.
	Dir string
	// Name is the base name of the data folder: <Dir>/<Name>_data.
	Name string
	// Network is the network name used in file names.
	Network string
}

// DataDir returns the data folder, which also holds the response cache.
func (l Layout) DataDir() string {
	return filepath.Join(l.Dir, l.Name+"_data")
}

// CivicsPath returns the path of the per-point table.
func (l Layout) CivicsPath() string {
	return filepath.Join(l.DataDir(), l.Network+"_civics_signal_strength.csv")
}

// TowersPath returns the path of the per-tower table.
func (l Layout) TowersPath() string {
	return filepath.Join(l.DataDir(), l.Network+"_towers.csv")
}

// Ensure creates the data folder.
func (l Layout) Ensure() error {
	if err := os.MkdirAll(l.DataDir(), 0o755); err != nil {
		return types.NewAppError(types.ErrCodeInternalIO,
			fmt.Sprintf("failed to create data folder %s", l.DataDir()), err)
	}
	return nil
}

// Prefix derives the column prefix from a network name: the first
// underscore-separated token, cut to four characters when it is longer than
// five.
func Prefix(network string) string {
	token, _, _ := strings.Cut(network, "_")
	if r := []rune(token); len(r) > 5 {
		return string(r[:4])
	}
	return token
}

// sidecarPath returns the .csvt path next to a .csv file.
func sidecarPath(csvPath string) string {
	return strings.TrimSuffix(csvPath, filepath.Ext(csvPath)) + ".csvt"
}
