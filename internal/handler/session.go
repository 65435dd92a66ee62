package handler

import (
	"sync"
	"time"

	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/httpspeed/pkg/speedtest/model"
	"github.com/m-lab/httpspeed/pkg/version"
)

// session collects the requests sharing a measurement ID.
type session struct {
	mu      sync.Mutex
	archive model.ArchivalData
}

func newSession(id, client, server string, metadata []model.NameValue) *session {
	return &session{
		archive: model.ArchivalData{
			GitShortCommit: prometheusx.GitShortCommit,
			Version:        version.Version,
			ID:             id,
			Client:         client,
			Server:         server,
			StartTime:      time.Now(),
			ClientMetadata: metadata,
		},
	}
}

// add appends a served request to the session.
func (s *session) add(r model.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archive.Requests = append(s.archive.Requests, r)
}

// Archive returns a copy of the session's archival data.
func (s *session) Archive() model.ArchivalData {
	s.mu.Lock()
	defer s.mu.Unlock()
	archive := s.archive
	archive.Requests = append([]model.Request{}, s.archive.Requests...)
	return archive
}
