package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShortCommit(t *testing.T) {
	orig := Commit
	defer func() { Commit = orig }()

	Commit = "0123456789abcdef"
	assert.Equal(t, "01234567", ShortCommit())

	Commit = "abc"
	assert.Equal(t, "abc", ShortCommit())
}

func TestInfoAndMap(t *testing.T) {
	assert.Contains(t, Info(), "agentdeploy "+Version)
	m := Map()
	assert.Equal(t, Version, m["version"])
	assert.NotEmpty(t, m["goVersion"])
	assert.Equal(t, "agentdeploy/"+Version, UserAgent())
}
