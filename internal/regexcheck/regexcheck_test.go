package regexcheck

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckAcceptsValidPattern(t *testing.T) {
	c := New()
	require.NoError(t, c.Check(`^\d+(,\d{3})*$`, "gi"))
}

func TestCheckRejectsUnknownFlag(t *testing.T) {
	c := New()
	require.Error(t, c.Check(`abc`, "q"))
}

func TestCheckRejectsBadSyntax(t *testing.T) {
	c := New()
	require.Error(t, c.Check(`(unclosed`, ""))
}
