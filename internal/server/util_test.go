package server

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeBase(t *testing.T) {
	cases := map[string]string{"": "", "/": "", "api": "/api", "/api/": "/api", " /a/b// ": "/a/b"}
	for in, want := range cases {
		assert.Equal(t, want, sanitizeBase(in), in)
	}
}

func TestIsSafeID(t *testing.T) {
	assert.True(t, isSafeID("3f2b8c1e-7d4a-4e8b-9c2d-1a2b3c4d5e6f"))
	assert.True(t, isSafeID("proc_1"))
	assert.False(t, isSafeID(""))
	assert.False(t, isSafeID("../etc"))
	assert.False(t, isSafeID("a.b"))
	assert.False(t, isSafeID("a/b"))
}

func TestIsSafeAbsPath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix paths")
	}
	assert.True(t, isSafeAbsPath(""))
	assert.True(t, isSafeAbsPath("/srv/game"))
	assert.True(t, isSafeAbsPath("/srv/game/"))
	assert.True(t, isSafeAbsPath("/"))
	assert.False(t, isSafeAbsPath("srv/game"))
	assert.False(t, isSafeAbsPath("/srv/../etc"))
	assert.False(t, isSafeAbsPath("/srv//game"))
}
