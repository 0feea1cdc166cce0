// Copyright 2024 The Model Factory Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the model-factory CLI/service configuration from
// ~/.model_factory.ini, section [default]. It is constructed once at
// process start and threaded explicitly into every component's
// constructor rather than read as a package-global (see SPEC_FULL.md's
// "process-wide catalogs and config" design note).
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Config is the [default]-section configuration, struct-tag validated the
// same way gtctl validates its own cluster config structs.
type Config struct {
	MongoDBEndpoint    string `yaml:"mongo_db_endpoint"`
	FrontendEndpoint   string `yaml:"mf_frontend_endpoint"`
	S3Bucket           string `yaml:"s3_bucket" validate:"required"`
	S3Endpoint         string `yaml:"s3_endpoint"`
	DockerRegistry     string `yaml:"docker_registry"`
	AWSAccessKeyID     string `yaml:"aws_access_key_id"`
	AWSSecretAccessKey string `yaml:"aws_secret_access_key"`
	StorageClass       string `yaml:"storage_class" validate:"required"`
}

// defaults mirrors core/config.py's Config class defaults.
func defaults() Config {
	return Config{
		S3Bucket:     "model-factory",
		StorageClass: "standard",
	}
}

// Load reads and validates the config file at path. A missing file yields
// defaults() (mirrors configparser's lenient behavior when
// the file or section is absent); a malformed file is a fatal configuration
// error, per spec.md §7.
func Load(path string) (*Config, error) {
	cfg := defaults()

	expanded, err := expandHome(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	f, err := os.Open(expanded)
	if os.IsNotExist(err) {
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open config file %s: %w", expanded, err)
	}
	defer f.Close()

	section, err := parseDefaultSection(f)
	if err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", expanded, err)
	}

	applySection(&cfg, section)

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", expanded, err)
	}

	return &cfg, nil
}

// parseDefaultSection is a small line-oriented INI scanner: it understands
// "[section]" headers and "key = value" assignments and returns only the
// key/value pairs under [default], which is all model-factory ever reads.
func parseDefaultSection(f *os.File) (map[string]string, error) {
	section := map[string]string{}
	inDefault := false

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			inDefault = strings.EqualFold(strings.Trim(line, "[]"), "default")
			continue
		}
		if !inDefault {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		section[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return section, scanner.Err()
}

func applySection(cfg *Config, section map[string]string) {
	set := func(dst *string, key string) {
		if v, ok := section[key]; ok && v != "" {
			*dst = v
		}
	}
	set(&cfg.MongoDBEndpoint, "mongo_db_endpoint")
	set(&cfg.FrontendEndpoint, "mf_frontend_endpoint")
	set(&cfg.S3Bucket, "s3_bucket")
	set(&cfg.S3Endpoint, "s3_endpoint")
	set(&cfg.DockerRegistry, "docker_registry")
	set(&cfg.AWSAccessKeyID, "aws_access_key_id")
	set(&cfg.AWSSecretAccessKey, "aws_secret_access_key")
	set(&cfg.StorageClass, "storage_class")
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// FrontendEndpointOrEnv resolves the frontend endpoint, letting
// MF_FRONTEND_ENDPOINT override the config file value, per spec.md §6.
func (c *Config) FrontendEndpointOrEnv() string {
	if v := os.Getenv("MF_FRONTEND_ENDPOINT"); v != "" {
		return v
	}
	return c.FrontendEndpoint
}

// ExecutionEnvironment resolves MF_EXECUTION_ENVIRONMENT, defaulting to k8s,
// per spec.md §6 and core/kubernetes_proxy.py's load_config.
func ExecutionEnvironment() string {
	if v := os.Getenv("MF_EXECUTION_ENVIRONMENT"); v != "" {
		return v
	}
	return "k8s"
}
