package main

import (
	"bytes"
	"flag"
	"strings"
	"testing"

	"github.com/diagnosis/agency-portal/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(flag.NewFlagSet("keygen", flag.ContinueOnError), nil)
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.Bytes)
	assert.Empty(t, cfg.Password)

	cfg, err = ParseConfig(flag.NewFlagSet("keygen", flag.ContinueOnError), []string{"-bytes", "48", "-password", "s3cret"})
	require.NoError(t, err)
	assert.Equal(t, 48, cfg.Bytes)
	assert.Equal(t, "s3cret", cfg.Password)
}

func TestRunWritesTokenSecret(t *testing.T) {
	var out bytes.Buffer
	random := bytes.NewReader(bytes.Repeat([]byte{0xab}, 16))

	require.NoError(t, Run(Config{Bytes: 16}, &out, random, nil))
	assert.Equal(t, "TOKEN_SECRET_KEY="+strings.Repeat("ab", 16)+"\n", out.String())
}

func TestRunRejectsShortKeys(t *testing.T) {
	assert.Error(t, Run(Config{Bytes: 8}, &bytes.Buffer{}, nil, nil))
	assert.Error(t, Run(Config{Bytes: 32}, nil, nil, nil))
}

func TestRunHashesPasswordFromStdin(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Run(Config{Bytes: 32, Password: "-"}, &out, nil, strings.NewReader("hunter2\n")))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "TOKEN_SECRET_KEY="))
	assert.Len(t, strings.TrimPrefix(lines[0], "TOKEN_SECRET_KEY="), 64)

	hash := strings.Trim(strings.TrimPrefix(lines[1], "ADMIN_PASSWORD_HASH="), "'")
	assert.NoError(t, auth.CheckPassword("hunter2", hash))
	assert.Error(t, auth.CheckPassword("hunter3", hash))
}
