package minio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyLayout(t *testing.T) {
	s := &Store{prefix: "vecglobe/artifacts"}

	assert.Equal(t, "vecglobe/artifacts/000000000000002a.artifact", s.key(42))
	assert.Equal(t, "vecglobe/artifacts/ffffffffffffffff.artifact", s.key(^uint64(0)))
}

func TestKeyNoPrefix(t *testing.T) {
	s := &Store{}

	assert.Equal(t, "0000000000000001.artifact", s.key(1))
}
