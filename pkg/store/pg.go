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

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-pg/pg/v10"
	"github.com/go-pg/pg/v10/orm"
)

// PG is a Postgres-backed Store. Each collection is one table with a text
// primary key and a single jsonb "doc" column holding the marshaled
// document — this keeps the schema agnostic to the document shape the
// same way the original document-database collections were, while letting
// go-pg's ORM give us upserts for free. Updates are an unlocked
// read-modify-write of the whole document.
type PG struct {
	db *pg.DB
}

// PGOptions mirrors the subset of pg.Options that model-factory's config
// file exposes.
type PGOptions struct {
	Addr     string
	Database string
	User     string
	Password string
}

type jobRow struct {
	tableName struct{} `pg:"jobs,discard_unknown_columns"`
	ID        string   `pg:"id,pk"`
	Doc       []byte   `pg:"doc,type:jsonb"`
}

type modelRow struct {
	tableName struct{} `pg:"models,discard_unknown_columns"`
	ID        string   `pg:"id,pk"`
	Doc       []byte   `pg:"doc,type:jsonb"`
}

type pointerRow struct {
	tableName struct{} `pg:"production_models,discard_unknown_columns"`
	ID        string   `pg:"id,pk"`
	Doc       []byte   `pg:"doc,type:jsonb"`
}

type triggerRow struct {
	tableName struct{} `pg:"triggers,discard_unknown_columns"`
	ID        string   `pg:"id,pk"`
	Doc       []byte   `pg:"doc,type:jsonb"`
}

// NewPG opens a connection pool and ensures the four collection tables
// exist, following gtctl's own pg.Connect(&pg.Options{...}) call shape.
func NewPG(ctx context.Context, opts PGOptions) (*PG, error) {
	db := pg.Connect(&pg.Options{
		Addr:     opts.Addr,
		Database: opts.Database,
		User:     opts.User,
		Password: opts.Password,
	})
	if _, err := db.ExecContext(ctx, "SELECT 1"); err != nil {
		return nil, fmt.Errorf("connect to tracking store: %w", err)
	}
	p := &PG{db: db}
	if err := p.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PG) ensureSchema(ctx context.Context) error {
	models := []interface{}{(*jobRow)(nil), (*modelRow)(nil), (*pointerRow)(nil), (*triggerRow)(nil)}
	for _, m := range models {
		err := p.db.ModelContext(ctx, m).CreateTable(&orm.CreateTableOptions{IfNotExists: true})
		if err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

func (p *PG) Close() error { return p.db.Close() }

func (p *PG) CreateJob(ctx context.Context, job Job) error {
	job.NormalizeTags()
	doc, err := json.Marshal(job)
	if err != nil {
		return err
	}
	row := &jobRow{ID: job.JobID, Doc: doc}
	res, err := p.db.ModelContext(ctx, row).OnConflict("DO NOTHING").Insert()
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	if res.RowsAffected() == 0 {
		return &AlreadyExistsError{Collection: "jobs", ID: job.JobID}
	}
	return nil
}

func (p *PG) getJobDoc(ctx context.Context, jobID string) (Job, error) {
	row := &jobRow{ID: jobID}
	err := p.db.ModelContext(ctx, row).WherePK().Select()
	if err == pg.ErrNoRows {
		return Job{}, &NotFoundError{Collection: "jobs", ID: jobID}
	}
	if err != nil {
		return Job{}, fmt.Errorf("get job: %w", err)
	}
	var job Job
	if err := json.Unmarshal(row.Doc, &job); err != nil {
		return Job{}, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	return job, nil
}

func (p *PG) putJobDoc(ctx context.Context, job Job) error {
	doc, err := json.Marshal(job)
	if err != nil {
		return err
	}
	row := &jobRow{ID: job.JobID, Doc: doc}
	_, err = p.db.ModelContext(ctx, row).WherePK().Update()
	return err
}

func (p *PG) UpdateJobFields(ctx context.Context, jobID string, fields map[string]interface{}) error {
	job, err := p.getJobDoc(ctx, jobID)
	if err != nil {
		return err
	}
	applyJobFields(&job, fields)
	return p.putJobDoc(ctx, job)
}

func (p *PG) GetJob(ctx context.Context, jobID string) (*Job, error) {
	job, err := p.getJobDoc(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (p *PG) FindJobs(ctx context.Context, filter Filter, projection Projection) ([]Job, error) {
	var rows []jobRow
	if err := p.db.ModelContext(ctx, &rows).Select(); err != nil {
		return nil, fmt.Errorf("find jobs: %w", err)
	}
	var out []Job
	for _, r := range rows {
		var job Job
		if err := json.Unmarshal(r.Doc, &job); err != nil {
			return nil, err
		}
		if matchJob(&job, filter) {
			out = append(out, applyProjection(job, projection))
		}
	}
	return out, nil
}

func (p *PG) AppendJobEvent(ctx context.Context, jobID string, event Event) error {
	job, err := p.getJobDoc(ctx, jobID)
	if err != nil {
		return err
	}
	event.Timestamp = nowIfZero(event.Timestamp)
	job.Events = append(job.Events, event)
	return p.putJobDoc(ctx, job)
}

func (p *PG) TagJob(ctx context.Context, jobID, tag string) error {
	job, err := p.getJobDoc(ctx, jobID)
	if err != nil {
		return err
	}
	job.Tags = append(job.Tags, tag)
	job.NormalizeTags()
	return p.putJobDoc(ctx, job)
}

func (p *PG) UntagJob(ctx context.Context, jobID, tag string) error {
	job, err := p.getJobDoc(ctx, jobID)
	if err != nil {
		return err
	}
	job.Tags = removeString(job.Tags, tag)
	return p.putJobDoc(ctx, job)
}

func (p *PG) CreateModel(ctx context.Context, model Model) error {
	model.NormalizeTags()
	doc, err := json.Marshal(model)
	if err != nil {
		return err
	}
	row := &modelRow{ID: model.ID, Doc: doc}
	_, err = p.db.ModelContext(ctx, row).OnConflict("(id) DO UPDATE").Insert()
	return err
}

func (p *PG) getModelDoc(ctx context.Context, modelID string) (Model, error) {
	row := &modelRow{ID: modelID}
	err := p.db.ModelContext(ctx, row).WherePK().Select()
	if err == pg.ErrNoRows {
		return Model{}, &NotFoundError{Collection: "models", ID: modelID}
	}
	if err != nil {
		return Model{}, fmt.Errorf("get model: %w", err)
	}
	var model Model
	if err := json.Unmarshal(row.Doc, &model); err != nil {
		return Model{}, err
	}
	return model, nil
}

func (p *PG) putModelDoc(ctx context.Context, model Model) error {
	doc, err := json.Marshal(model)
	if err != nil {
		return err
	}
	row := &modelRow{ID: model.ID, Doc: doc}
	_, err = p.db.ModelContext(ctx, row).WherePK().Update()
	return err
}

func (p *PG) GetModel(ctx context.Context, modelID string) (*Model, error) {
	model, err := p.getModelDoc(ctx, modelID)
	if err != nil {
		return nil, err
	}
	return &model, nil
}

func (p *PG) FindModels(ctx context.Context, filter Filter) ([]Model, error) {
	var rows []modelRow
	if err := p.db.ModelContext(ctx, &rows).Select(); err != nil {
		return nil, fmt.Errorf("find models: %w", err)
	}
	var out []Model
	for _, r := range rows {
		var model Model
		if err := json.Unmarshal(r.Doc, &model); err != nil {
			return nil, err
		}
		if matchModel(&model, filter) {
			out = append(out, model)
		}
	}
	return out, nil
}

func (p *PG) DeleteModel(ctx context.Context, modelID string) error {
	row := &modelRow{ID: modelID}
	res, err := p.db.ModelContext(ctx, row).WherePK().Delete()
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return &NotFoundError{Collection: "models", ID: modelID}
	}
	return nil
}

func (p *PG) TagModel(ctx context.Context, modelID, tag string) error {
	model, err := p.getModelDoc(ctx, modelID)
	if err != nil {
		return err
	}
	model.Tags = append(model.Tags, tag)
	model.NormalizeTags()
	return p.putModelDoc(ctx, model)
}

func (p *PG) UntagModel(ctx context.Context, modelID, tag string) error {
	model, err := p.getModelDoc(ctx, modelID)
	if err != nil {
		return err
	}
	model.Tags = removeString(model.Tags, tag)
	return p.putModelDoc(ctx, model)
}

func (p *PG) AddMetric(ctx context.Context, modelID, key string, value float64, ts int64) error {
	model, err := p.getModelDoc(ctx, modelID)
	if err != nil {
		return err
	}
	if model.Metric == nil {
		model.Metric = map[string][]MetricPoint{}
	}
	model.Metric[key] = append(model.Metric[key], MetricPoint{Value: value, Timestamp: time.Unix(ts, 0).UTC()})
	return p.putModelDoc(ctx, model)
}

// Promote runs inside a transaction: verify the model exists, then upsert
// the pointer, so the "points to an existing model" invariant from
// spec.md §3 never observes a gap.
func (p *PG) Promote(ctx context.Context, modelName, modelID string) error {
	return p.db.RunInTransaction(ctx, func(tx *pg.Tx) error {
		exists, err := tx.ModelContext(ctx, (*modelRow)(nil)).Where("id = ?", modelID).Exists()
		if err != nil {
			return fmt.Errorf("check model existence: %w", err)
		}
		if !exists {
			return &NotFoundError{Collection: "models", ID: modelID}
		}

		existing := &pointerRow{ID: modelName}
		err = tx.ModelContext(ctx, existing).WherePK().Select()
		var ptr ProductionPointer
		switch err {
		case nil:
			if err := json.Unmarshal(existing.Doc, &ptr); err != nil {
				return err
			}
		case pg.ErrNoRows:
			ptr = ProductionPointer{ID: modelName}
		default:
			return err
		}

		ptr.ModelID = modelID
		ptr.Events = append(ptr.Events, Event{Timestamp: time.Now().UTC(), Type: "promote"})

		doc, err := json.Marshal(ptr)
		if err != nil {
			return err
		}
		row := &pointerRow{ID: modelName, Doc: doc}
		_, err = tx.ModelContext(ctx, row).OnConflict("(id) DO UPDATE").Insert()
		return err
	})
}

func (p *PG) GetProductionPointer(ctx context.Context, modelName string) (*ProductionPointer, error) {
	row := &pointerRow{ID: modelName}
	err := p.db.ModelContext(ctx, row).WherePK().Select()
	if err == pg.ErrNoRows {
		return nil, &NotFoundError{Collection: "production_models", ID: modelName}
	}
	if err != nil {
		return nil, err
	}
	var ptr ProductionPointer
	if err := json.Unmarshal(row.Doc, &ptr); err != nil {
		return nil, err
	}
	return &ptr, nil
}

func (p *PG) ListProductionPointers(ctx context.Context) ([]ProductionPointer, error) {
	var rows []pointerRow
	if err := p.db.ModelContext(ctx, &rows).Select(); err != nil {
		return nil, err
	}
	out := make([]ProductionPointer, 0, len(rows))
	for _, r := range rows {
		var ptr ProductionPointer
		if err := json.Unmarshal(r.Doc, &ptr); err != nil {
			return nil, err
		}
		out = append(out, ptr)
	}
	return out, nil
}

func (p *PG) AppendProductionEvent(ctx context.Context, modelName string, event Event) error {
	ptr, err := p.GetProductionPointer(ctx, modelName)
	if err != nil {
		return err
	}
	event.Timestamp = nowIfZero(event.Timestamp)
	ptr.Events = append(ptr.Events, event)
	doc, err := json.Marshal(ptr)
	if err != nil {
		return err
	}
	row := &pointerRow{ID: modelName, Doc: doc}
	_, err = p.db.ModelContext(ctx, row).WherePK().Update()
	return err
}

func (p *PG) UpsertTrigger(ctx context.Context, trigger TriggerRecord) error {
	doc, err := json.Marshal(trigger)
	if err != nil {
		return err
	}
	row := &triggerRow{ID: trigger.ID, Doc: doc}
	_, err = p.db.ModelContext(ctx, row).OnConflict("(id) DO UPDATE").Insert()
	return err
}

func (p *PG) GetTrigger(ctx context.Context, name string) (*TriggerRecord, error) {
	row := &triggerRow{ID: name}
	err := p.db.ModelContext(ctx, row).WherePK().Select()
	if err == pg.ErrNoRows {
		return nil, &NotFoundError{Collection: "triggers", ID: name}
	}
	if err != nil {
		return nil, err
	}
	var t TriggerRecord
	if err := json.Unmarshal(row.Doc, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (p *PG) ListTriggers(ctx context.Context) ([]TriggerRecord, error) {
	var rows []triggerRow
	if err := p.db.ModelContext(ctx, &rows).Select(); err != nil {
		return nil, err
	}
	out := make([]TriggerRecord, 0, len(rows))
	for _, r := range rows {
		var t TriggerRecord
		if err := json.Unmarshal(r.Doc, &t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (p *PG) DeleteTrigger(ctx context.Context, name string) error {
	row := &triggerRow{ID: name}
	res, err := p.db.ModelContext(ctx, row).WherePK().Delete()
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return &NotFoundError{Collection: "triggers", ID: name}
	}
	return nil
}
