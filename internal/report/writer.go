package report

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"rfcoverage/internal/selector"
	"rfcoverage/internal/types"
)

// Tables is everything needed to render the reports of one run.
type Tables struct {
	Outcomes []selector.Outcome
	Towers   []types.TowerStat
	K        int
	IDType   IDType
}

// WriteAll writes both tables and their sidecars. The four files are
// independent and are written concurrently.
func WriteAll(ctx context.Context, l Layout, t Tables) error {
	if err := l.Ensure(); err != nil {
		return err
	}
	idType := t.IDType
	if idType == "" {
		idType = IDString
	}

	civics := make([][]string, 0, len(t.Outcomes)+1)
	civics = append(civics, CivicsHeader(Prefix(l.Network), t.K))
	for _, out := range t.Outcomes {
		if rec, ok := CivicsRecord(out, t.K); ok {
			civics = append(civics, rec)
		}
	}

	towers := make([][]string, 0, len(t.Towers)+1)
	towers = append(towers, TowersHeader)
	for _, s := range t.Towers {
		towers = append(towers, TowerRecord(s))
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return writeCSV(gCtx, l.CivicsPath(), civics) })
	g.Go(func() error { return writeSidecar(sidecarPath(l.CivicsPath()), CivicsSidecar(idType, t.K)) })
	g.Go(func() error { return writeCSV(gCtx, l.TowersPath(), towers) })
	g.Go(func() error { return writeSidecar(sidecarPath(l.TowersPath()), TowersSidecar) })
	return g.Wait()
}

func writeCSV(ctx context.Context, path string, records [][]string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalIO, fmt.Sprintf("failed to create %s", path), err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = types.NewAppError(types.ErrCodeInternalIO, fmt.Sprintf("failed to close %s", path), cerr)
		}
	}()

	bw := bufio.NewWriterSize(f, 256*1024)
	cw := csv.NewWriter(bw)
	for i, rec := range records {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		_ = cw.Write(rec) // error is buffered; checked after Flush
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return types.NewAppError(types.ErrCodeInternalIO, fmt.Sprintf("failed to write %s", path), err)
	}
	if err := bw.Flush(); err != nil {
		return types.NewAppError(types.ErrCodeInternalIO, fmt.Sprintf("failed to flush %s", path), err)
	}
	return nil
}

// writeSidecar writes a one-line .csvt file: every type double-quoted,
// comma-separated, no trailing newline.
func writeSidecar(path string, fieldTypes []string) error {
	line := `"` + strings.Join(fieldTypes, `","`) + `"`
	if err := os.WriteFile(path, []byte(line), 0o644); err != nil {
		return types.NewAppError(types.ErrCodeInternalIO, fmt.Sprintf("failed to write %s", path), err)
	}
	return nil
}
