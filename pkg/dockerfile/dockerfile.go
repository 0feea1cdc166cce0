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

// Package dockerfile composes the per-pipeline build context (spec.md §2
// "Dockerfile composer") and shells out to the docker CLI to build and
// push it, the same way gtctl's pkg/cmd/gtctl/cluster/connect/pg shells
// out to kubectl/psql rather than linking a client library.
package dockerfile

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/jiaxincao/modelfactory/pkg/pipeline"
)

// baseImageVersions is the composer's table of known base image tags and
// the version each one carries, so a pipeline's DockerBaseImageConstraint
// has something to validate against without inspecting the image itself.
var baseImageVersions = map[string]string{
	"python3.9-slim":  "3.9.18",
	"python3.10-slim": "3.10.13",
	"python3.11-slim": "3.11.7",
}

// Compose renders the Dockerfile text for pipeline p: the named base
// image's template, plus COPY layers for the frontend client, core
// library, the pipeline's own source, and any dependent pipelines.
func Compose(baseDir string, p pipeline.Pipeline) (string, error) {
	if err := checkBaseImageConstraint(p); err != nil {
		return "", err
	}

	templatePath := filepath.Join(baseDir, "docker", p.DockerBaseImage+".dockerfile")
	base, err := os.ReadFile(templatePath)
	if err != nil {
		return "", fmt.Errorf("read base image template %s: %w", templatePath, err)
	}

	var b strings.Builder
	b.Write(base)
	b.WriteString("\n")
	b.WriteString("RUN mkdir -p /model-factory/execution\n")
	b.WriteString("COPY pkg/frontend /model-factory/src/pkg/frontend\n")
	b.WriteString("COPY pkg /model-factory/src/pkg\n")
	fmt.Fprintf(&b, "COPY pipelines/%s /model-factory/src/pipelines/%s\n", p.Name, p.Name)

	for _, dep := range p.DependentPipelines {
		fmt.Fprintf(&b, "COPY pipelines/%s /model-factory/src/pipelines/%s\n", dep, dep)
	}

	return b.String(), nil
}

// checkBaseImageConstraint validates p.DockerBaseImage's registered
// version against p.DockerBaseImageConstraint, when the pipeline declares
// one. A base image with no registered version, or a pipeline with no
// constraint, is accepted unconditionally.
func checkBaseImageConstraint(p pipeline.Pipeline) error {
	if p.DockerBaseImageConstraint == "" {
		return nil
	}

	version, ok := baseImageVersions[p.DockerBaseImage]
	if !ok {
		return nil
	}

	constraint, err := semver.NewConstraint(p.DockerBaseImageConstraint)
	if err != nil {
		return fmt.Errorf("pipeline %s: invalid docker base image constraint %q: %w", p.Name, p.DockerBaseImageConstraint, err)
	}

	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("pipeline %s: base image %s has invalid registered version %q: %w", p.Name, p.DockerBaseImage, version, err)
	}

	if !constraint.Check(v) {
		return fmt.Errorf("pipeline %s: base image %s version %s does not satisfy constraint %q", p.Name, p.DockerBaseImage, version, p.DockerBaseImageConstraint)
	}
	return nil
}

// Write renders Compose's output to a fresh temp file under dir, mirroring
// the source's tempfile.mkstemp(prefix="model_factory_dockerfile_") call.
func Write(dir, content string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, "model_factory_dockerfile_")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return "", err
	}
	return f.Name(), nil
}

// BuildAndPush builds dockerfilePath's context as tag and pushes it,
// returning the resolved digest reported by the docker CLI.
func BuildAndPush(ctx context.Context, dockerfilePath, contextDir, tag string) (digest string, err error) {
	build := exec.CommandContext(ctx, "docker", "build", "-f", dockerfilePath, "-t", tag, contextDir)
	build.Stdout = os.Stdout
	build.Stderr = os.Stderr
	if err := build.Run(); err != nil {
		return "", fmt.Errorf("docker build %s: %w", tag, err)
	}

	push := exec.CommandContext(ctx, "docker", "push", tag)
	push.Stdout = os.Stdout
	push.Stderr = os.Stderr
	if err := push.Run(); err != nil {
		return "", fmt.Errorf("docker push %s: %w", tag, err)
	}

	out, err := exec.CommandContext(ctx, "docker", "inspect", "--format={{index .RepoDigests 0}}", tag).Output()
	if err != nil {
		return "", fmt.Errorf("resolve digest for %s: %w", tag, err)
	}
	return strings.TrimSpace(string(out)), nil
}
