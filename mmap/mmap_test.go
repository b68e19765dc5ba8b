package mmap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMMapRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapped")
	fd, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	assert.Nil(t, err)
	defer fd.Close()
	assert.Nil(t, fd.Truncate(4096))

	buf, err := MMap(fd, true, 4096)
	assert.Nil(t, err)
	assert.Equal(t, 4096, len(buf))

	assert.Nil(t, MAdvise(buf, true))

	copy(buf, "through the mapping")
	assert.Nil(t, MSync(buf))

	data, err := os.ReadFile(path)
	assert.Nil(t, err)
	assert.Equal(t, []byte("through the mapping"), data[:19])

	assert.Nil(t, MUnmap(buf))
}

func TestMMapReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapped")
	assert.Nil(t, os.WriteFile(path, make([]byte, 1024), 0644))
	fd, err := os.OpenFile(path, os.O_RDONLY, 0)
	assert.Nil(t, err)
	defer fd.Close()

	buf, err := MMap(fd, false, 1024)
	assert.Nil(t, err)
	assert.Equal(t, 1024, len(buf))
	assert.Nil(t, MUnmap(buf))
}
