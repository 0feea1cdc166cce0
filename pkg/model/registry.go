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

// Package model is the content-addressed model registry (spec.md §4.6):
// register/push/pull/promote/delete_model, packing artifact directories
// into tar archives uploaded to the object store.
package model

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jiaxincao/modelfactory/pkg/objectstore"
	"github.com/jiaxincao/modelfactory/pkg/store"
)

const modelsKeyPrefix = "models"

// Registry implements spec.md §4.6 on top of a Store and an ObjectStore.
// No archive format beyond the stdlib's archive/tar (uncompressed) is wired here: the
// example pack carries no third-party archive library, so this is the one
// place a genuinely ecosystem-backed alternative doesn't exist.
type Registry struct {
	store  store.Store
	blobs  objectstore.ObjectStore
}

// NewRegistry builds a Registry over an already-constructed store and
// object store client.
func NewRegistry(s store.Store, blobs objectstore.ObjectStore) *Registry {
	return &Registry{store: s, blobs: blobs}
}

// Register allocates a model id and inserts the tracking document.
func (r *Registry) Register(ctx context.Context, modelName, jobID string, tags []string, metadata map[string]interface{}) (string, error) {
	modelID := "m-" + uuid.NewString()
	err := r.store.CreateModel(ctx, store.Model{
		ID:        modelID,
		ModelName: modelName,
		JobID:     jobID,
		Timestamp: time.Now().UTC(),
		Tags:      tags,
		Metadata:  metadata,
	})
	if err != nil {
		return "", err
	}
	return modelID, nil
}

func modelS3Key(modelID string) string {
	return fmt.Sprintf("%s/%s.tar", modelsKeyPrefix, modelID)
}

// Push packs modelPath into a tar whose top-level entry name is the
// model's registered name, then uploads it under models/<model_id>.tar.
func (r *Registry) Push(ctx context.Context, modelID, modelPath string) error {
	info, err := r.store.GetModel(ctx, modelID)
	if err != nil {
		return err
	}

	tmpTar, err := os.CreateTemp("", "model-*.tar")
	if err != nil {
		return err
	}
	tmpPath := tmpTar.Name()
	defer os.Remove(tmpPath)

	if err := packModel(tmpTar, modelPath, info.ModelName); err != nil {
		tmpTar.Close()
		return fmt.Errorf("pack model %s: %w", modelID, err)
	}
	if err := tmpTar.Close(); err != nil {
		return err
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return err
	}

	return r.blobs.Put(ctx, modelS3Key(modelID), f, st.Size())
}

// Pull downloads models/<model_id>.tar to targetDir/model.tar and extracts
// it in place, returning the model's tracking document.
func (r *Registry) Pull(ctx context.Context, modelID, targetDir string) (*store.Model, error) {
	info, err := r.store.GetModel(ctx, modelID)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return nil, err
	}

	body, err := r.blobs.Get(ctx, modelS3Key(modelID))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	tarPath := filepath.Join(targetDir, "model.tar")
	f, err := os.Create(tarPath)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	defer os.Remove(tarPath)

	if err := unpackModel(tarPath, targetDir); err != nil {
		return nil, fmt.Errorf("unpack model %s: %w", modelID, err)
	}

	return info, nil
}

// DeleteModel removes the S3 object first, then the tracking document,
// matching spec.md §3's documented best-effort ordering.
func (r *Registry) DeleteModel(ctx context.Context, modelID string) error {
	if err := r.blobs.Delete(ctx, modelS3Key(modelID)); err != nil {
		return fmt.Errorf("delete model blob %s: %w", modelID, err)
	}
	return r.store.DeleteModel(ctx, modelID)
}

func (r *Registry) TagModel(ctx context.Context, modelID, tag string) error {
	return r.store.TagModel(ctx, modelID, tag)
}

func (r *Registry) UntagModel(ctx context.Context, modelID, tag string) error {
	return r.store.UntagModel(ctx, modelID, tag)
}

// Promote validates the model exists (inside the store), upserts the
// production pointer and appends a promote event.
func (r *Registry) Promote(ctx context.Context, modelID string) error {
	info, err := r.store.GetModel(ctx, modelID)
	if err != nil {
		return err
	}
	if err := r.store.Promote(ctx, info.ModelName, modelID); err != nil {
		return err
	}
	return nil
}

func (r *Registry) ListProductionModels(ctx context.Context) ([]store.ProductionPointer, error) {
	return r.store.ListProductionPointers(ctx)
}

// AddMetric appends a metric observation under the model's metric envelope.
func (r *Registry) AddMetric(ctx context.Context, modelID, key string, value float64, ts time.Time) error {
	return r.store.AddMetric(ctx, modelID, key, value, ts.Unix())
}

// packModel mirrors core/model_registry.py's _pack_model: the tar's
// top-level entry is always named modelName regardless of modelPath's own
// basename.
func packModel(w io.Writer, modelPath, modelName string) error {
	tw := tar.NewWriter(w)
	defer tw.Close()

	return filepath.Walk(modelPath, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(modelPath, path)
		if err != nil {
			return err
		}
		name := modelName
		if rel != "." {
			name = filepath.Join(modelName, rel)
		}

		hdr, err := tar.FileInfoHeader(fi, "")
		if err != nil {
			return err
		}
		hdr.Name = name
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
}

func unpackModel(tarPath, targetDir string) error {
	f, err := os.Open(tarPath)
	if err != nil {
		return err
	}
	defer f.Close()

	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target := filepath.Join(targetDir, hdr.Name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		}
	}
}
