package archive

import (
	"archive/tar"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfcoverage/internal/types"
)

func writeCache(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
}

func TestPackUnpack(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "LTE_best_signal")
	doc := `{"Transmitters":[]}` + strings.Repeat(" ", 600)
	writeCache(t, src, map[string]string{
		"1.json":  doc,
		"2.json":  "",
		"C9.json": doc,
	})
	require.NoError(t, os.Mkdir(filepath.Join(src, "nested"), 0o755))

	bundle := filepath.Join(root, "LTE"+Extension)
	st, err := Pack(context.Background(), src, bundle)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Files)
	assert.Equal(t, int64(2*len(doc)), st.Bytes)

	dst := filepath.Join(root, "restored")
	st, err = Unpack(context.Background(), bundle, dst, false)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Files)

	got, err := os.ReadFile(filepath.Join(dst, "C9.json"))
	require.NoError(t, err)
	assert.Equal(t, doc, string(got))
	assert.NoDirExists(t, filepath.Join(dst, "nested"))
}

func TestUnpack_KeepsExistingFiles(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	writeCache(t, src, map[string]string{"1.json": "bundled"})

	bundle := filepath.Join(root, "c"+Extension)
	_, err := Pack(context.Background(), src, bundle)
	require.NoError(t, err)

	dst := filepath.Join(root, "dst")
	writeCache(t, dst, map[string]string{"1.json": "local"})

	st, err := Unpack(context.Background(), bundle, dst, false)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Files)
	got, _ := os.ReadFile(filepath.Join(dst, "1.json"))
	assert.Equal(t, "local", string(got))

	st, err = Unpack(context.Background(), bundle, dst, true)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Files)
	got, _ = os.ReadFile(filepath.Join(dst, "1.json"))
	assert.Equal(t, "bundled", string(got))
}

func TestUnpack_RejectsPathTraversal(t *testing.T) {
	root := t.TempDir()
	bundle := filepath.Join(root, "evil"+Extension)

	f, err := os.Create(bundle)
	require.NoError(t, err)
	enc, err := zstd.NewWriter(f)
	require.NoError(t, err)
	tw := tar.NewWriter(enc)
	body := []byte("x")
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "../escape.json", Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
	_, err = tw.Write(body)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	_, err = Unpack(context.Background(), bundle, filepath.Join(root, "dst"), true)
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationInvalidInput, appErr.Code)
	assert.NoFileExists(t, filepath.Join(root, "escape.json"))
}

func TestPack_MissingDir(t *testing.T) {
	root := t.TempDir()
	_, err := Pack(context.Background(), filepath.Join(root, "absent"), filepath.Join(root, "x"+Extension))
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalIO, appErr.Code)
}

func TestPack_Cancelled(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	writeCache(t, src, map[string]string{"1.json": "a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	bundle := filepath.Join(root, "c"+Extension)
	_, err := Pack(ctx, src, bundle)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, bundle)

	left, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, left, 1, "the partial bundle is removed")
	assert.Equal(t, "src", left[0].Name())
}
