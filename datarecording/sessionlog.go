package datarecording

import (
	"os"
	"strings"
	"time"
)

// SessionInfo is one property of the recorded session.
type SessionInfo struct {
	Property string
	Value    string
}

// A SessionRecorder logs the metadata of one cosimulation run: the command
// line, the backend, and the wall-clock span.
type SessionRecorder struct {
	tableName string
	recorder  DataRecorder
	entries   []SessionInfo
}

// NewSessionRecorder creates a SessionRecorder writing to the given
// recorder.
func NewSessionRecorder(recorder DataRecorder) *SessionRecorder {
	s := &SessionRecorder{
		tableName: "session_info",
		recorder:  recorder,
	}

	s.recorder.CreateTable(s.tableName, SessionInfo{})

	return s
}

// Record stores one session property.
func (s *SessionRecorder) Record(property, value string) {
	s.entries = append(s.entries, SessionInfo{property, value})
}

// Start logs the launch time and command line.
func (s *SessionRecorder) Start() {
	startTime := time.Now().Format("2006-01-02 15:04:05.000000000")
	s.entries = append(s.entries, SessionInfo{"Start Time", startTime})

	cmd := strings.Join(os.Args, " ")
	s.entries = append(s.entries, SessionInfo{"Command", cmd})
}

// End writes the buffered properties plus the exit time to the database.
func (s *SessionRecorder) End() {
	for _, entry := range s.entries {
		s.recorder.InsertData(s.tableName, entry)
	}

	endTime := time.Now().Format("2006-01-02 15:04:05.000000000")
	s.recorder.InsertData(s.tableName, SessionInfo{"End Time", endTime})

	s.entries = nil

	s.recorder.Flush()
}
