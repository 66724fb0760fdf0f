package battery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixed(t *testing.T) {
	l, err := Fixed(85).Level()
	require.NoError(t, err)
	assert.Equal(t, 85, l)

	l, _ = Fixed(140).Level()
	assert.Equal(t, 100, l)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0, Clamp(-5))
	assert.Equal(t, 0, Clamp(0))
	assert.Equal(t, 20, Clamp(20))
	assert.Equal(t, 100, Clamp(100))
	assert.Equal(t, 100, Clamp(101))
}

func TestSysfs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capacity")
	require.NoError(t, os.WriteFile(path, []byte("17\n"), 0o644))

	l, err := Sysfs{Path: path}.Level()
	require.NoError(t, err)
	assert.Equal(t, 17, l)
}

func TestSysfsMissing(t *testing.T) {
	_, err := Sysfs{Path: filepath.Join(t.TempDir(), "nope")}.Level()
	assert.Error(t, err)
}

func TestSysfsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capacity")
	require.NoError(t, os.WriteFile(path, []byte("Full\n"), 0o644))

	_, err := Sysfs{Path: path}.Level()
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	s, err := New("", 60, "")
	require.NoError(t, err)
	assert.Equal(t, Fixed(60), s)

	s, err = New(KindSysfs, 0, "")
	require.NoError(t, err)
	assert.Equal(t, Sysfs{Path: DefaultSysfsPath}, s)

	_, err = New("adc", 0, "")
	assert.Error(t, err)
}
