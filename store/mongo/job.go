package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/quarryhq/quarry"
	"github.com/quarryhq/quarry/id"
	"github.com/quarryhq/quarry/job"
)

// CreateJob persists a new job. The status is forced to pending.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	cp := *j
	cp.Status = job.StatusPending

	_, err := s.db.Collection(colJobs).InsertOne(ctx, toJobModel(&cp))
	if err != nil {
		if isDuplicateKey(err) {
			return quarry.ErrJobAlreadyExists
		}
		return fmt.Errorf("quarry/mongo: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var m jobModel
	err := s.db.Collection(colJobs).FindOne(ctx, bson.M{"_id": jobID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, quarry.ErrJobNotFound
		}
		return nil, fmt.Errorf("quarry/mongo: get job: %w", err)
	}
	return fromJobModel(&m)
}

// UpdateStatus applies a partial status mutation and returns the updated job.
// Load, apply, replace. The supervisor is the only status writer for a job
// that is being executed, so the replace does not race.
func (s *Store) UpdateStatus(ctx context.Context, jobID id.JobID, u job.StatusUpdate) (*job.Job, error) {
	j, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.ValidTransition(j.Status, u.Status) {
		return nil, fmt.Errorf("quarry/mongo: %s to %s: %w", j.Status, u.Status, quarry.ErrInvalidTransition)
	}
	job.ApplyUpdate(j, u, now())

	res, err := s.db.Collection(colJobs).ReplaceOne(ctx, bson.M{"_id": jobID.String()}, toJobModel(j))
	if err != nil {
		return nil, fmt.Errorf("quarry/mongo: update job status: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, quarry.ErrJobNotFound
	}
	return j, nil
}

// DeleteJob removes a job and cascades deletion of its results.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	res, err := s.db.Collection(colJobs).DeleteOne(ctx, bson.M{"_id": jobID.String()})
	if err != nil {
		return fmt.Errorf("quarry/mongo: delete job: %w", err)
	}
	if res.DeletedCount == 0 {
		return quarry.ErrJobNotFound
	}

	if _, err := s.db.Collection(colResults).DeleteMany(ctx, bson.M{"job_id": jobID.String()}); err != nil {
		return fmt.Errorf("quarry/mongo: delete job results: %w", err)
	}
	return nil
}

// ListJobs returns jobs matching the filters plus the total match count.
// Jobs are ordered newest first.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, int64, error) {
	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	if opts.Kind != "" {
		filter["kind"] = opts.Kind
	}
	if opts.Tag != "" {
		filter["tags"] = opts.Tag
	}

	col := s.db.Collection(colJobs)

	total, err := col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("quarry/mongo: count jobs: %w", err)
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	cursor, err := col.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, 0, fmt.Errorf("quarry/mongo: list jobs: %w", err)
	}
	defer cursor.Close(ctx)

	var jobs []*job.Job
	for cursor.Next(ctx) {
		var m jobModel
		if err := cursor.Decode(&m); err != nil {
			return nil, 0, fmt.Errorf("quarry/mongo: decode job: %w", err)
		}
		j, err := fromJobModel(&m)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, j)
	}
	if err := cursor.Err(); err != nil {
		return nil, 0, fmt.Errorf("quarry/mongo: iterate jobs: %w", err)
	}
	return jobs, total, nil
}

// NextPending returns the pending job with the highest priority, breaking
// ties by earliest creation time. Returns (nil, nil) when the backlog is
// empty.
func (s *Store) NextPending(ctx context.Context) (*job.Job, error) {
	findOpts := options.FindOne().SetSort(bson.D{
		{Key: "priority", Value: -1},
		{Key: "created_at", Value: 1},
	})

	var m jobModel
	err := s.db.Collection(colJobs).
		FindOne(ctx, bson.M{"status": string(job.StatusPending)}, findOpts).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("quarry/mongo: next pending: %w", err)
	}
	return fromJobModel(&m)
}

// ResetRunning moves every running job back to pending with the given error
// annotation and returns how many were reset.
func (s *Store) ResetRunning(ctx context.Context, note string) (int64, error) {
	res, err := s.db.Collection(colJobs).UpdateMany(ctx,
		bson.M{"status": string(job.StatusRunning)},
		bson.M{
			"$set": bson.M{
				"status":     string(job.StatusPending),
				"error":      note,
				"progress":   0.0,
				"updated_at": now(),
			},
			"$unset": bson.M{
				"started_at":   "",
				"completed_at": "",
			},
		})
	if err != nil {
		return 0, fmt.Errorf("quarry/mongo: reset running jobs: %w", err)
	}
	if res.ModifiedCount > 0 {
		s.logger.Info("reset interrupted jobs", "count", res.ModifiedCount)
	}
	return res.ModifiedCount, nil
}

// CreateResult persists a result for a completed job.
func (s *Store) CreateResult(ctx context.Context, r *job.Result) error {
	if _, err := s.db.Collection(colResults).InsertOne(ctx, toResultModel(r)); err != nil {
		return fmt.Errorf("quarry/mongo: create result: %w", err)
	}
	return nil
}

// GetResult retrieves a result by ID.
func (s *Store) GetResult(ctx context.Context, resultID id.ResultID) (*job.Result, error) {
	var m resultModel
	err := s.db.Collection(colResults).FindOne(ctx, bson.M{"_id": resultID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, quarry.ErrResultNotFound
		}
		return nil, fmt.Errorf("quarry/mongo: get result: %w", err)
	}
	return fromResultModel(&m)
}

// ListResults returns all results owned by the given job, oldest first.
func (s *Store) ListResults(ctx context.Context, jobID id.JobID) ([]*job.Result, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})

	cursor, err := s.db.Collection(colResults).Find(ctx, bson.M{"job_id": jobID.String()}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("quarry/mongo: list results: %w", err)
	}
	defer cursor.Close(ctx)

	var results []*job.Result
	for cursor.Next(ctx) {
		var m resultModel
		if err := cursor.Decode(&m); err != nil {
			return nil, fmt.Errorf("quarry/mongo: decode result: %w", err)
		}
		r, err := fromResultModel(&m)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("quarry/mongo: iterate results: %w", err)
	}
	return results, nil
}
