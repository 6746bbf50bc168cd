package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diogenesvanzella/nanvix/common"
)

func TestNewRamdiskGeometry(t *testing.T) {
	_, err := NewRamdisk(make([]byte, 100), 64)
	assert.Error(t, err)

	_, err = NewRamdisk(make([]byte, 128), 0)
	assert.Error(t, err)

	r, err := NewRamdisk(make([]byte, 640), 64)
	require.NoError(t, err)
	assert.Equal(t, 10, r.Blocks())
}

func TestRamdiskRoundtrip(t *testing.T) {
	raw := make([]byte, 640)
	r, err := NewRamdisk(raw, 64)
	require.NoError(t, err)

	b := &common.Block{Num: 3, Data: make([]byte, 64), Flags: common.BufferDirty}
	b.Data[0] = 0x42
	require.NoError(t, r.WriteBlock(b))
	assert.Zero(t, b.Flags&common.BufferDirty, "write must clean the buffer")
	assert.Equal(t, byte(0x42), raw[3*64])

	b2 := &common.Block{Num: 3, Data: make([]byte, 64)}
	require.NoError(t, r.ReadBlock(b2))
	assert.NotZero(t, b2.Flags&common.BufferValid, "read must validate the buffer")
	assert.Equal(t, byte(0x42), b2.Data[0])
}

func TestRamdiskBounds(t *testing.T) {
	r, err := NewRamdisk(make([]byte, 640), 64)
	require.NoError(t, err)

	b := &common.Block{Num: 10, Data: make([]byte, 64)}
	err = r.ReadBlock(b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "beyond end of device")

	b = &common.Block{Num: 0, Data: make([]byte, 32)}
	err = r.WriteBlock(b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")
}
