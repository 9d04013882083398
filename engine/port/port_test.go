package port_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentovic/jack1/engine/port"
	"github.com/sentovic/jack1/errs"
)

func TestRegister_FillsFirstFreeSlot(t *testing.T) {
	tbl := port.NewTable(4)
	tbl.RegisterType(port.Type{ID: 0, Name: "audio", ScaleFactor: 1, SampleBytes: 4})

	p1, err := tbl.Register(0, 1, "out1", port.FlagOutput)
	require.NoError(t, err)
	require.Equal(t, uint32(0), p1.ID)

	p2, err := tbl.Register(0, 1, "out2", port.FlagOutput)
	require.NoError(t, err)
	require.Equal(t, uint32(1), p2.ID)
}

func TestRegister_NoFreeSlot(t *testing.T) {
	tbl := port.NewTable(1)
	tbl.RegisterType(port.Type{ID: 0, Name: "audio", ScaleFactor: 1, SampleBytes: 4})
	_, err := tbl.Register(0, 1, "a", port.FlagOutput)
	require.NoError(t, err)

	_, err = tbl.Register(0, 1, "b", port.FlagOutput)
	require.Error(t, err)
	require.Equal(t, errs.NoFreePortSlot, errs.CodeOf(err))
}

func TestUnregister_RejectsWrongOwner(t *testing.T) {
	tbl := port.NewTable(2)
	tbl.RegisterType(port.Type{ID: 0, Name: "audio", ScaleFactor: 1, SampleBytes: 4})
	p, err := tbl.Register(0, 1, "a", port.FlagOutput)
	require.NoError(t, err)

	err = tbl.Unregister(p.ID, 2)
	require.Error(t, err)
	require.Equal(t, errs.OwnerMismatch, errs.CodeOf(err))

	require.NoError(t, tbl.Unregister(p.ID, 1))
	_, ok := tbl.Get(p.ID)
	require.False(t, ok)
}

func TestUnregister_FreesSlotForReuse(t *testing.T) {
	tbl := port.NewTable(1)
	tbl.RegisterType(port.Type{ID: 0, Name: "audio", ScaleFactor: 1, SampleBytes: 4})
	p, err := tbl.Register(0, 1, "a", port.FlagOutput)
	require.NoError(t, err)
	require.NoError(t, tbl.Unregister(p.ID, 1))

	p2, err := tbl.Register(0, 1, "b", port.FlagOutput)
	require.NoError(t, err)
	require.Equal(t, p.ID, p2.ID)
}

func TestReleaseOwnedBy(t *testing.T) {
	tbl := port.NewTable(4)
	tbl.RegisterType(port.Type{ID: 0, Name: "audio", ScaleFactor: 1, SampleBytes: 4})
	_, _ = tbl.Register(0, 1, "a", port.FlagOutput)
	_, _ = tbl.Register(0, 1, "b", port.FlagInput)
	_, _ = tbl.Register(0, 2, "c", port.FlagOutput)

	freed := tbl.ReleaseOwnedBy(1)
	require.Len(t, freed, 2)
	require.Len(t, tbl.All(), 1)
}

func TestType_BufferSize(t *testing.T) {
	fixed := port.Type{FixedBytes: 64}
	require.Equal(t, 64, fixed.BufferSize(256))

	scaled := port.Type{ScaleFactor: 1, SampleBytes: 4}
	require.Equal(t, 1024, scaled.BufferSize(256))
}
