package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExtraVars(t *testing.T) {
	vars, err := parseExtraVars([]string{"env=staging", "region=us-east-1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"env": "staging", "region": "us-east-1"}, vars)
}

func TestParseExtraVarsEmpty(t *testing.T) {
	vars, err := parseExtraVars(nil)
	require.NoError(t, err)
	assert.Nil(t, vars)
}

func TestParseExtraVarsInvalid(t *testing.T) {
	_, err := parseExtraVars([]string{"no-equals"})
	assert.Error(t, err)

	_, err = parseExtraVars([]string{"=value"})
	assert.Error(t, err)
}

func TestParseExtraVarsKeepsEqualsInValue(t *testing.T) {
	vars, err := parseExtraVars([]string{"query=a=b"})
	require.NoError(t, err)
	assert.Equal(t, "a=b", vars["query"])
}
