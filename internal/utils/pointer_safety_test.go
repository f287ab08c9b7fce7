package utils_test

import (
	"testing"

	"github.com/jrsteele09/go-session-auth/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestCopy(t *testing.T) {
	require.Nil(t, utils.Copy[string](nil))

	original := utils.Ptr("secret")
	copied := utils.Copy(original)
	require.Equal(t, "secret", utils.Value(copied))

	*copied = "changed"
	require.Equal(t, "secret", *original)
}

func TestValue(t *testing.T) {
	require.Equal(t, 0, utils.Value[int](nil))
	require.Equal(t, 3, utils.Value(utils.Ptr(3)))
}
