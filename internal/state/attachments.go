package state

import (
	"slices"

	"github.com/soyeahso/agentdesk/internal/domain"
)

// AddPendingAttachment queues an uploaded attachment for the next send.
func (s *Store) AddPendingAttachment(a domain.Attachment) {
	if a.ID.IsZero() {
		return
	}
	s.mutate(func() []Change {
		if slices.ContainsFunc(s.pending, func(p domain.Attachment) bool { return p.ID == a.ID }) {
			return nil
		}
		s.pending = append(s.pending, a)
		return []Change{{Kind: ChangeAttachments, ID: a.ID}}
	})
}

// RemovePendingAttachment drops one queued attachment.
func (s *Store) RemovePendingAttachment(id domain.ID) {
	s.mutate(func() []Change {
		before := len(s.pending)
		s.pending = slices.DeleteFunc(s.pending, func(p domain.Attachment) bool { return p.ID == id })
		if len(s.pending) == before {
			return nil
		}
		return []Change{{Kind: ChangeAttachments, ID: id}}
	})
}

// ClearPendingAttachments empties the queue, as after a successful send.
func (s *Store) ClearPendingAttachments() {
	s.mutate(func() []Change {
		if len(s.pending) == 0 {
			return nil
		}
		s.pending = nil
		return []Change{{Kind: ChangeAttachments}}
	})
}

// PendingAttachments returns the queued attachments.
func (s *Store) PendingAttachments() []domain.Attachment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.pending)
}

// PendingAttachmentIDs returns the ids of the queued attachments.
func (s *Store) PendingAttachmentIDs() []domain.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]domain.ID, 0, len(s.pending))
	for _, p := range s.pending {
		ids = append(ids, p.ID)
	}
	return ids
}

// BeginUpload marks an upload as running.
func (s *Store) BeginUpload() {
	s.SetUploadProgress(0)
}

// SetUploadProgress records upload progress in percent. A negative value
// means no upload is running.
func (s *Store) SetUploadProgress(percent int) {
	if percent > 100 {
		percent = 100
	}
	if percent < 0 {
		percent = -1
	}
	s.mutate(func() []Change {
		s.uploadProgress = percent
		return []Change{{Kind: ChangeAttachments}}
	})
}

// EndUpload marks the running upload as finished.
func (s *Store) EndUpload() {
	s.SetUploadProgress(-1)
}

// Uploading reports whether an upload is running, and its progress.
func (s *Store) Uploading() (bool, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uploadProgress >= 0, s.uploadProgress
}
