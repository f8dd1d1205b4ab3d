// Package imagegen renders scene illustrations on an external diffusion backend.
package imagegen

import "context"

// JobStatus is the lifecycle state of a render job
type JobStatus string

const (
	StatusSubmitted JobStatus = "submitted"
	StatusPending   JobStatus = "pending"
	StatusReady     JobStatus = "ready"
	StatusFailed    JobStatus = "failed"
	StatusTimedOut  JobStatus = "timed_out"
)

// Terminal reports whether no further transitions can happen
func (s JobStatus) Terminal() bool {
	return s == StatusReady || s == StatusFailed || s == StatusTimedOut
}

// Artifact locates a rendered file on the backend
type Artifact struct {
	Filename  string
	Subfolder string
	Type      string
}

// JobState is one status observation
type JobState struct {
	Status   JobStatus
	Artifact *Artifact
	Message  string
}

// Backend is an asynchronous rendering service
type Backend interface {
	Submit(ctx context.Context, req Request) (string, error)
	Status(ctx context.Context, jobID string) (JobState, error)
	Fetch(ctx context.Context, artifact Artifact) ([]byte, error)
}
