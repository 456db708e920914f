package badger

import (
	"github.com/campscout/pipeline/internal/common"
	"github.com/campscout/pipeline/internal/interfaces"
	"github.com/ternarybob/arbor"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db      *BadgerDB
	source  interfaces.SourceStorage
	job     interfaces.JobStorage
	request interfaces.RequestStorage
	alert   interfaces.AlertStorage
	session interfaces.SessionStorage
	status  interfaces.StatusStorage
	logger  arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:      db,
		source:  NewSourceStorage(db, logger),
		job:     NewJobStorage(db, logger),
		request: NewRequestStorage(db, logger),
		alert:   NewAlertStorage(db, logger),
		session: NewSessionStorage(db, logger),
		status:  NewStatusStorage(db, logger),
		logger:  logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// SourceStorage returns the Source storage interface
func (m *Manager) SourceStorage() interfaces.SourceStorage {
	return m.source
}

// JobStorage returns the ScrapeJob storage interface
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.job
}

// RequestStorage returns the development request storage interface
func (m *Manager) RequestStorage() interfaces.RequestStorage {
	return m.request
}

// AlertStorage returns the Alert storage interface
func (m *Manager) AlertStorage() interfaces.AlertStorage {
	return m.alert
}

// SessionStorage returns the Session storage interface
func (m *Manager) SessionStorage() interfaces.SessionStorage {
	return m.session
}

// StatusStorage returns the pipeline status storage interface
func (m *Manager) StatusStorage() interfaces.StatusStorage {
	return m.status
}

// Close closes the underlying database
func (m *Manager) Close() error {
	return m.db.Close()
}
