package mongo

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/quarryhq/quarry/id"
	"github.com/quarryhq/quarry/job"
)

type jobModel struct {
	ID          string     `bson:"_id"`
	Kind        string     `bson:"kind"`
	Config      []byte     `bson:"config,omitempty"`
	Status      string     `bson:"status"`
	Priority    int        `bson:"priority"`
	Tags        []string   `bson:"tags,omitempty"`
	Progress    float64    `bson:"progress"`
	Error       string     `bson:"error,omitempty"`
	OutputRef   string     `bson:"output_ref,omitempty"`
	CreatedAt   time.Time  `bson:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at"`
	StartedAt   *time.Time `bson:"started_at,omitempty"`
	CompletedAt *time.Time `bson:"completed_at,omitempty"`
}

func toJobModel(j *job.Job) *jobModel {
	return &jobModel{
		ID:          j.ID.String(),
		Kind:        j.Kind,
		Config:      j.Config,
		Status:      string(j.Status),
		Priority:    j.Priority,
		Tags:        j.Tags,
		Progress:    j.Progress,
		Error:       j.Error,
		OutputRef:   j.OutputRef,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	parsedID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("quarry/mongo: parse job id %q: %w", m.ID, err)
	}

	return &job.Job{
		ID:          parsedID,
		Kind:        m.Kind,
		Config:      json.RawMessage(m.Config),
		Status:      job.Status(m.Status),
		Priority:    m.Priority,
		Tags:        m.Tags,
		Progress:    m.Progress,
		Error:       m.Error,
		OutputRef:   m.OutputRef,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
	}, nil
}

type resultModel struct {
	ID        string         `bson:"_id"`
	JobID     string         `bson:"job_id"`
	Data      map[string]any `bson:"data,omitempty"`
	Stats     map[string]any `bson:"stats,omitempty"`
	OutputRef string         `bson:"output_ref,omitempty"`
	CreatedAt time.Time      `bson:"created_at"`
}

func toResultModel(r *job.Result) *resultModel {
	return &resultModel{
		ID:        r.ID.String(),
		JobID:     r.JobID.String(),
		Data:      r.Data,
		Stats:     r.Stats,
		OutputRef: r.OutputRef,
		CreatedAt: r.CreatedAt,
	}
}

func fromResultModel(m *resultModel) (*job.Result, error) {
	parsedID, err := id.ParseResultID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("quarry/mongo: parse result id %q: %w", m.ID, err)
	}
	parsedJobID, err := id.ParseJobID(m.JobID)
	if err != nil {
		return nil, fmt.Errorf("quarry/mongo: parse result job id %q: %w", m.JobID, err)
	}

	return &job.Result{
		ID:        parsedID,
		JobID:     parsedJobID,
		Data:      m.Data,
		Stats:     m.Stats,
		OutputRef: m.OutputRef,
		CreatedAt: m.CreatedAt,
	}, nil
}
