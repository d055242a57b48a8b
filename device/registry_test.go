package device

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/europasms/sender/model"
	"github.com/stretchr/testify/require"
)

func prepareDevDir(t *testing.T) (string, func()) {
	dir, err := ioutil.TempDir(os.TempDir(), "devices")
	require.NoError(t, err)

	//two physical modems as plain ttys
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "ttyUSB0"), nil, 0600))
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "ttyUSB1"), nil, 0600))

	//by-id namespace pointing at the same ttys, first modem with two interfaces
	byID := filepath.Join(dir, "by-id")
	require.NoError(t, os.Mkdir(byID, 0700))
	require.NoError(t, os.Symlink(filepath.Join(dir, "ttyUSB0"), filepath.Join(byID, "usb-HUAWEI_LTE-if00-port0")))
	require.NoError(t, os.Symlink(filepath.Join(dir, "ttyUSB2"), filepath.Join(byID, "usb-HUAWEI_LTE-if01-port0")))
	require.NoError(t, os.Symlink(filepath.Join(dir, "ttyUSB1"), filepath.Join(byID, "usb-ZTE_MF190-if00-port0")))
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "ttyUSB2"), nil, 0600))

	return dir, func() { os.RemoveAll(dir) }
}

func newTestRegistry(dir string) Registry {
	return NewRegistry(filepath.Join(dir, "ttyUSB*"), filepath.Join(dir, "by-id", "*"))
}

func TestRegistry_Discover(t *testing.T) {
	dir, cleanup := prepareDevDir(t)
	defer cleanup()
	registry := newTestRegistry(dir)

	channels := registry.Discover(nil)

	//ttyUSB0 appears via two namespaces and ttyUSB2 is the second interface
	//of the same physical modem, so two channels remain
	require.Len(t, channels, 2)
	canonicals := make(map[string]bool)
	for _, c := range channels {
		require.False(t, canonicals[c.Canonical], "duplicate canonical %s", c.Canonical)
		canonicals[c.Canonical] = true
	}
	require.True(t, canonicals[filepath.Join(dir, "ttyUSB0")])
	require.True(t, canonicals[filepath.Join(dir, "ttyUSB1")])
	//if00 wins inside the HUAWEI group, so its second interface is absent
	require.False(t, canonicals[filepath.Join(dir, "ttyUSB2")])

	for i, c := range channels {
		require.Equal(t, i, c.Ordinal)
		require.Equal(t, model.UNKNOWN, c.Status)
	}
}

func TestRegistry_DiscoverIdempotent(t *testing.T) {
	dir, cleanup := prepareDevDir(t)
	defer cleanup()
	registry := newTestRegistry(dir)

	first := registry.Discover(nil)
	second := registry.Discover(nil)

	require.Equal(t, first, second)
}

func TestRegistry_DiscoverPreferred(t *testing.T) {
	dir, cleanup := prepareDevDir(t)
	defer cleanup()
	registry := newTestRegistry(dir)

	//preferring the second interface of the HUAWEI group keeps the user's
	//prior selection stable across rescans
	preferred := map[string]bool{filepath.Join(dir, "ttyUSB2"): true}
	channels := registry.Discover(preferred)

	canonicals := make(map[string]bool)
	for _, c := range channels {
		canonicals[c.Canonical] = true
	}
	require.True(t, canonicals[filepath.Join(dir, "ttyUSB2")])
	require.False(t, canonicals[filepath.Join(dir, "ttyUSB0")])
}

func TestRegistry_DiscoverEmpty(t *testing.T) {
	dir, err := ioutil.TempDir(os.TempDir(), "devices")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	registry := NewRegistry(filepath.Join(dir, "ttyUSB*"))

	require.Empty(t, registry.Discover(nil))
}
