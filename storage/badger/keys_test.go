package badger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTenantPrefixIsolation(t *testing.T) {
	// "ab" must not fall inside the range of tenant "a"
	keyA := makeRecordKey("a", "b:x")
	keyAB := makeRecordKey("ab", "x")

	assert.True(t, bytes.HasPrefix(keyA, makeTenantPrefix("a")))
	assert.False(t, bytes.HasPrefix(keyAB, makeTenantPrefix("a")))
	assert.True(t, bytes.HasPrefix(keyAB, makeAllRecordsPrefix()))
}

func TestMakeCheckpointKey(t *testing.T) {
	assert.Equal(t, "ingchk:2:t1:/data/s.txt", string(makeCheckpointKey("t1", "/data/s.txt")))
	assert.NotEqual(t, makeCheckpointKey("t1", "a"), makeCheckpointKey("t2", "a"))
}
