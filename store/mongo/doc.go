// Package mongo provides a MongoDB implementation of job.Store using the
// official driver. The caller owns the *mongo.Client lifecycle; Store never
// disconnects it.
//
// Status updates are read-modify-write: the supervisor is the sole status
// writer for an active job, so per-document atomicity of the final replace
// is sufficient.
package mongo
