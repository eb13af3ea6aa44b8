package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	assert.Equal(t, "live", Live.String())
	assert.Equal(t, "file", File.String())
	assert.Equal(t, "inet", InetSocket.String())
	assert.Equal(t, "unix", UnixSocket.String())
	assert.Equal(t, "unknown", Kind(0).String())

	assert.True(t, File.Offline())
	for _, k := range []Kind{Live, InetSocket, UnixSocket} {
		assert.False(t, k.Offline(), k.String())
	}
}
