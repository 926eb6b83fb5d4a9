package transfer

import (
	"context"
	"sync"

	"github.com/cuongbtq/constituent-transfer/internal/domain"
)

type exportEntry struct {
	job    ExportJob
	ctx    context.Context
	cancel context.CancelFunc
}

// Registry holds in-flight export and upload jobs plus the per-owner active
// export index. Each export carries its own cancellation token.
type Registry struct {
	mu      sync.RWMutex
	exports map[string]*exportEntry
	uploads map[string]UploadJob
	active  map[string]string
	closed  bool
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		exports: make(map[string]*exportEntry),
		uploads: make(map[string]UploadJob),
		active:  make(map[string]string),
	}
}

// CreateExport stores job and marks it active for its owner. When the owner
// already has an active export, that job is returned with created == false and
// nothing is stored. The returned context is the job's cancellation token.
func (r *Registry) CreateExport(parent context.Context, job ExportJob) (ExportJob, context.Context, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ExportJob{}, nil, false, domain.ErrShuttingDown
	}

	if id, ok := r.active[job.OwnerID]; ok {
		if entry, ok := r.exports[id]; ok && !IsTerminal(entry.job.Status) {
			return entry.job, entry.ctx, false, nil
		}
		delete(r.active, job.OwnerID)
	}

	ctx, cancel := context.WithCancel(parent)
	job.Pagination = job.Pagination.Clone()
	r.exports[job.ID] = &exportEntry{job: job, ctx: ctx, cancel: cancel}
	r.active[job.OwnerID] = job.ID

	return job, ctx, true, nil
}

// GetExport returns a copy of the job
func (r *Registry) GetExport(id string) (ExportJob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.exports[id]
	if !ok {
		return ExportJob{}, false
	}
	return entry.job, true
}

// UpdateExport applies fn to the stored job under the lock and returns the
// result. It returns false when the job is gone. A terminal transition
// releases the owner's active slot.
func (r *Registry) UpdateExport(id string, fn func(job *ExportJob)) (ExportJob, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.exports[id]
	if !ok {
		return ExportJob{}, false
	}

	fn(&entry.job)

	if IsTerminal(entry.job.Status) {
		if r.active[entry.job.OwnerID] == id {
			delete(r.active, entry.job.OwnerID)
		}
		entry.cancel()
	}

	return entry.job, true
}

// RemoveExport deletes the job, fires its cancellation token and frees the
// owner's active slot
func (r *Registry) RemoveExport(id string) (ExportJob, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.exports[id]
	if !ok {
		return ExportJob{}, false
	}

	entry.cancel()
	delete(r.exports, id)
	if r.active[entry.job.OwnerID] == id {
		delete(r.active, entry.job.OwnerID)
	}

	return entry.job, true
}

// ActiveExport returns the owner's non-terminal export id
func (r *Registry) ActiveExport(ownerID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.active[ownerID]
	return id, ok
}

// CreateUpload stores a new upload job
func (r *Registry) CreateUpload(job UploadJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return domain.ErrShuttingDown
	}
	r.uploads[job.ID] = job.clone()
	return nil
}

// GetUpload returns a copy of the job
func (r *Registry) GetUpload(id string) (UploadJob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.uploads[id]
	if !ok {
		return UploadJob{}, false
	}
	return job.clone(), true
}

// UpdateUpload applies fn to the stored job under the lock. fn may return an
// error to reject the transition, in which case nothing is written.
func (r *Registry) UpdateUpload(id string, fn func(job *UploadJob) error) (UploadJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.uploads[id]
	if !ok {
		return UploadJob{}, domain.ErrNotFound
	}

	updated := job.clone()
	if err := fn(&updated); err != nil {
		return job.clone(), err
	}
	r.uploads[id] = updated

	return updated.clone(), nil
}

// RemoveUpload deletes the job
func (r *Registry) RemoveUpload(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.uploads[id]
	delete(r.uploads, id)
	return ok
}

// Close rejects new jobs and fires every export's cancellation token
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	for _, entry := range r.exports {
		entry.cancel()
	}
}
