package wind

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslateSingle(t *testing.T) {
	ind := NewIndicators(testLogger())

	assert.Equal(t, "close", ind.Translate("收盘价"))
	assert.Equal(t, "pe_ttm", ind.Translate("市盈率TTM"))
	// Raw field codes and unknown names pass through.
	assert.Equal(t, "close", ind.Translate("close"))
	assert.Equal(t, "自由现金流", ind.Translate("自由现金流"))
}

func TestTranslateCommaList(t *testing.T) {
	ind := NewIndicators(testLogger())

	got := ind.Translate("收盘价,成交量, 市净率")
	assert.Equal(t, "close,volume,pb_lf", got)

	got = ind.Translate("收盘价,raw_field,最高价")
	assert.Equal(t, "close,raw_field,high", got)
}

func TestLoadFileMergesOverBuiltins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indicators.yaml")
	require.NoError(t, os.WriteFile(path, []byte("自由现金流: fcff\n收盘价: close_adj\n"), 0o644))

	ind := NewIndicators(testLogger())
	require.NoError(t, ind.LoadFile(path))

	assert.Equal(t, "fcff", ind.Translate("自由现金流"))
	assert.Equal(t, "close_adj", ind.Translate("收盘价"))
	// Built-ins not shadowed stay intact.
	assert.Equal(t, "volume", ind.Translate("成交量"))
}

func TestLoadFileInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indicators.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":\n  - broken"), 0o644))

	ind := NewIndicators(testLogger())
	assert.Error(t, ind.LoadFile(path))
	// Table untouched on a failed load.
	assert.Equal(t, "close", ind.Translate("收盘价"))
}

func TestWatchReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indicators.yaml")
	require.NoError(t, os.WriteFile(path, []byte("自由现金流: fcff\n"), 0o644))

	ind := NewIndicators(testLogger())
	require.NoError(t, ind.Watch(path))
	defer ind.Close()

	assert.Equal(t, "fcff", ind.Translate("自由现金流"))

	require.NoError(t, os.WriteFile(path, []byte("自由现金流: fcfe\n"), 0o644))

	assert.Eventually(t, func() bool {
		return ind.Translate("自由现金流") == "fcfe"
	}, 5*time.Second, 50*time.Millisecond)
}

func TestWatchSurvivesAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "indicators.yaml")
	require.NoError(t, os.WriteFile(path, []byte("自由现金流: fcff\n"), 0o644))

	ind := NewIndicators(testLogger())
	require.NoError(t, ind.Watch(path))
	defer ind.Close()

	// Editors and config pushers save via temp file + rename, which
	// replaces the inode under the watcher.
	tmp := filepath.Join(dir, "indicators.yaml.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("自由现金流: fcfe\n"), 0o644))
	require.NoError(t, os.Rename(tmp, path))

	assert.Eventually(t, func() bool {
		return ind.Translate("自由现金流") == "fcfe"
	}, 5*time.Second, 50*time.Millisecond)

	// The watch must still be live for ordinary writes afterwards.
	require.NoError(t, os.WriteFile(path, []byte("自由现金流: fcf_adj\n"), 0o644))

	assert.Eventually(t, func() bool {
		return ind.Translate("自由现金流") == "fcf_adj"
	}, 5*time.Second, 50*time.Millisecond)
}

func TestAliasesReturnsCopy(t *testing.T) {
	ind := NewIndicators(testLogger())

	aliases := ind.Aliases()
	aliases["收盘价"] = "tampered"

	assert.Equal(t, "close", ind.Translate("收盘价"))
}
