package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuperuserPasswordFromEnvironment(t *testing.T) {
	t.Setenv(superuserPasswordEnv, "from-env-pass")

	password, err := superuserPassword(strings.NewReader(""), &bytes.Buffer{}, true)
	require.NoError(t, err)
	assert.Equal(t, "from-env-pass", password)
}

func TestSuperuserPasswordNoInputRequiresEnvironment(t *testing.T) {
	t.Setenv(superuserPasswordEnv, "")

	_, err := superuserPassword(strings.NewReader(""), &bytes.Buffer{}, true)
	assert.ErrorContains(t, err, superuserPasswordEnv)
}

func TestSuperuserPasswordPrompted(t *testing.T) {
	var out bytes.Buffer

	password, err := superuserPassword(strings.NewReader("s3cure-pass\ns3cure-pass\n"), &out, false)
	require.NoError(t, err)
	assert.Equal(t, "s3cure-pass", password)
	assert.Contains(t, out.String(), "Password (again): ")
}

func TestSuperuserPasswordMismatch(t *testing.T) {
	_, err := superuserPassword(strings.NewReader("one-password\nother-password\n"), &bytes.Buffer{}, false)
	assert.EqualError(t, err, "passwords do not match")
}

func TestSuperuserPasswordBlank(t *testing.T) {
	_, err := superuserPassword(strings.NewReader("\n\n"), &bytes.Buffer{}, false)
	assert.EqualError(t, err, "password cannot be blank")
}
