package main

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/diagnosis/agency-portal/pkg/auth"
)

type Config struct {
	Bytes    int
	Password string
}

func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{Bytes: 32}
	fs.IntVar(&cfg.Bytes, "bytes", cfg.Bytes, "number of random bytes for TOKEN_SECRET_KEY")
	fs.StringVar(&cfg.Password, "password", "", `admin password to hash for ADMIN_PASSWORD_HASH ("-" reads one line from stdin)`)
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run writes env lines to out. random defaults to crypto/rand; stdin is only read for -password -.
func Run(cfg Config, out io.Writer, random io.Reader, stdin io.Reader) error {
	if cfg.Bytes < 16 {
		return errors.New("bytes must be at least 16")
	}
	if out == nil {
		return errors.New("output is required")
	}
	if random == nil {
		random = rand.Reader
	}

	buf := make([]byte, cfg.Bytes)
	if _, err := io.ReadFull(random, buf); err != nil {
		return fmt.Errorf("generate random bytes: %w", err)
	}
	if _, err := fmt.Fprintf(out, "TOKEN_SECRET_KEY=%s\n", hex.EncodeToString(buf)); err != nil {
		return err
	}

	password := cfg.Password
	if password == "-" {
		if stdin == nil {
			return errors.New("stdin is required for -password -")
		}
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = fmt.Fprintf(out, "ADMIN_PASSWORD_HASH='%s'\n", hash)
	return err
}
