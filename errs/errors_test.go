package errs_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentovic/jack1/errs"
)

func TestCode_StatusIsNegative(t *testing.T) {
	err := errs.PortLocked.Error(nil)
	require.Equal(t, int32(-int32(errs.PortLocked)), err.Status())
	require.Less(t, err.Status(), int32(0))
}

func TestCode_ParentChaining(t *testing.T) {
	parent := errors.New("socket reset")
	err := errs.IOFailure.Error(parent)

	require.Equal(t, parent, errors.Unwrap(err))
	require.Contains(t, err.Error(), "socket reset")
}

func TestCode_IsMatchesByCode(t *testing.T) {
	a := errs.ClientNotFound.Error(nil)
	b := errs.ClientNotFound.Errorf(nil, "client %d", 7)

	require.True(t, errors.Is(a, b))
	require.False(t, errors.Is(a, errs.PortLocked.Error(nil)))
}

func TestStatusOf_NonEngineError(t *testing.T) {
	require.Equal(t, int32(-1), errs.StatusOf(errors.New("boom")))
	require.Equal(t, int32(0), errs.StatusOf(nil))
}

func TestCodeOf(t *testing.T) {
	require.Equal(t, errs.DuplicateConnection, errs.CodeOf(errs.DuplicateConnection.Error(nil)))
	require.Equal(t, errs.UnknownError, errs.CodeOf(errors.New("plain")))
}
