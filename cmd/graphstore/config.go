package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/evannetwork/graphstore/pkg/envelope"
	"github.com/evannetwork/graphstore/pkg/keyring"
)

// fileConfig is the YAML shape of the CLI config:
//
//	store: ./graphstore-data
//	default:
//	  algorithm: aes-256-gcm
//	  origin: me
//	origins:
//	  me:
//	    - fromBlock: 0
//	      key: 0x<64 hex chars>
type fileConfig struct {
	Store   string               `yaml:"store"`
	Default defaultConfig        `yaml:"default"`
	Origins map[string][]keyConf `yaml:"origins"`
}

type defaultConfig struct {
	Algorithm string `yaml:"algorithm"`
	Origin    string `yaml:"origin"`
	Block     uint64 `yaml:"block"`
}

type keyConf struct {
	FromBlock uint64 `yaml:"fromBlock"`
	Key       string `yaml:"key"`
}

func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var conf fileConfig
	if err := yaml.UnmarshalStrict(data, &conf); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if conf.Store == "" {
		return nil, fmt.Errorf("config %s: store path must be set", path)
	}
	return &conf, nil
}

func (c *fileConfig) defaultInfo() envelope.CryptoInfo {
	info := envelope.CryptoInfo{
		Algorithm: c.Default.Algorithm,
		Origin:    c.Default.Origin,
		Block:     c.Default.Block,
	}
	if info.Algorithm == "" {
		info.Algorithm = envelope.AlgoUnencrypted
	}
	return info
}

func (c *fileConfig) ring() *keyring.Ring {
	ring := keyring.New()
	for origin, keys := range c.Origins {
		for _, kc := range keys {
			key, err := hex.DecodeString(strings.TrimPrefix(kc.Key, "0x"))
			if err != nil || len(key) != envelope.KeySize {
				logrus.WithField("origin", origin).Warn("skipping malformed key in config")
				continue
			}
			ring.Grant(origin, kc.FromBlock, key)
		}
	}
	return ring
}
