// Package session records experiment runs: transmissions over a link and
// the per-cycle measurements taken while they ran.
package session

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/r3d91ll/chime/pkg/errors"
	"github.com/r3d91ll/chime/pkg/link"
)

// Session is a named experiment grouping transmissions and measurements.
type Session struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	StartedAt   time.Time      `json:"started_at"`
	EndedAt     *time.Time     `json:"ended_at,omitempty"`
	Config      Config         `json:"config"`
	Metadata    map[string]any `json:"metadata,omitempty"`

	Transmissions []*Transmission `json:"transmissions"`
	Measurements  []*Measurement  `json:"measurements"`

	mu sync.RWMutex
}

// Config holds session configuration.
type Config struct {
	MeasurementMode MeasurementMode `json:"measurement_mode" yaml:"measurement_mode"`
	AutoExport      bool            `json:"auto_export" yaml:"auto_export"`
	ExportPath      string          `json:"export_path" yaml:"export_path"`
}

// MeasurementMode determines which cycles are recorded.
type MeasurementMode string

const (
	MeasureOff    MeasurementMode = "off"    // transmissions only
	MeasureAll    MeasurementMode = "all"    // every cycle
	MeasureLatest MeasurementMode = "latest" // last cycle of each frame
)

// IsValid returns true if this is a valid measurement mode.
func (m MeasurementMode) IsValid() bool {
	switch m {
	case MeasureOff, MeasureAll, MeasureLatest:
		return true
	default:
		return false
	}
}

// Validate checks the session config. An empty mode is allowed.
func (c *Config) Validate() error {
	if c.MeasurementMode != "" && !c.MeasurementMode.IsValid() {
		return errors.ValidationErrorf(errors.ErrValidationInvalidValue, "invalid measurement mode %q", c.MeasurementMode).
			WithContext("field", "measurement_mode").
			WithSuggestion("Use one of: off, all, latest")
	}
	return nil
}

// New creates a session.
func New(name, description string) *Session {
	return &Session{
		ID:            uuid.New().String(),
		Name:          name,
		Description:   description,
		StartedAt:     time.Now(),
		Transmissions: make([]*Transmission, 0),
		Measurements:  make([]*Measurement, 0),
		Metadata:      make(map[string]any),
		Config: Config{
			MeasurementMode: MeasureAll,
			AutoExport:      false,
			ExportPath:      "./experiments",
		},
	}
}

// Validate checks the session and everything it holds.
func (s *Session) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.ID == "" {
		return errors.ValidationError(errors.ErrValidationRequired, "id is required").WithContext("field", "id")
	}
	if s.Name == "" {
		return errors.ValidationError(errors.ErrValidationRequired, "name is required").WithContext("field", "name")
	}
	if s.StartedAt.IsZero() {
		return errors.ValidationError(errors.ErrValidationRequired, "started_at is required").WithContext("field", "started_at")
	}
	if s.EndedAt != nil && !s.EndedAt.After(s.StartedAt) {
		return errors.ValidationError(errors.ErrValidationOutOfRange, "ended_at must be after started_at").
			WithContext("field", "ended_at")
	}
	if err := s.Config.Validate(); err != nil {
		return err
	}
	for i, m := range s.Measurements {
		if m == nil {
			return errors.ValidationError(errors.ErrValidationRequired, "measurement at index "+strconv.Itoa(i)+" is nil").
				WithContext("field", "measurements")
		}
		if err := m.Validate(); err != nil {
			return errors.Wrap(err, errors.ErrValidationInvalidValue, errors.CategoryValidation,
				"measurements["+strconv.Itoa(i)+"] is invalid")
		}
	}
	return nil
}

// AddMeasurement adds a measurement to the session.
func (s *Session) AddMeasurement(m *Measurement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.SessionID = s.ID
	s.Measurements = append(s.Measurements, m)
}

// AddTransmission records a link outcome and attaches every measurement not
// yet bound to a transmission.
func (s *Session) AddTransmission(mode link.Mode, out link.Outcome) *Transmission {
	t := NewTransmission(mode, out)

	s.mu.Lock()
	defer s.mu.Unlock()
	t.SessionID = s.ID
	for _, m := range s.Measurements {
		if m.TransmissionID == "" {
			m.TransmissionID = t.ID
		}
	}
	s.Transmissions = append(s.Transmissions, t)
	return t
}

// ObserveCycle implements link.Observer.
func (s *Session) ObserveCycle(ev link.CycleEvent) {
	switch s.Config.MeasurementMode {
	case MeasureOff:
		return
	case MeasureLatest:
		s.replaceLatest(ev)
	default:
		s.AddMeasurement(MeasurementFromCycle(ev))
	}
}

// ObserveFrame implements link.Observer. Frames are summarized by the
// transmission record.
func (s *Session) ObserveFrame(link.FrameEvent) {}

// replaceLatest keeps only the newest cycle per unbound frame.
func (s *Session) replaceLatest(ev link.CycleEvent) {
	m := MeasurementFromCycle(ev)
	s.mu.Lock()
	defer s.mu.Unlock()
	m.SessionID = s.ID
	if n := len(s.Measurements); n > 0 {
		last := s.Measurements[n-1]
		if last.TransmissionID == "" && last.MessageID == m.MessageID && last.Sequence == m.Sequence {
			s.Measurements[n-1] = m
			return
		}
	}
	s.Measurements = append(s.Measurements, m)
}

// End marks the session as ended.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.EndedAt = &now
}

// Stats holds session statistics.
type Stats struct {
	TransmissionCount int     `json:"transmission_count"`
	SuccessCount      int     `json:"success_count"`
	MeasurementCount  int     `json:"measurement_count"`
	CorrectedCount    int     `json:"corrected_count"`
	SuccessRate       float64 `json:"success_rate"`
	BitErrorRate      float64 `json:"bit_error_rate"`
	AvgResonance      float64 `json:"avg_resonance"`
	AvgEntropy        float64 `json:"avg_entropy"`
	AvgCoherence      float64 `json:"avg_coherence"`
}

// Stats returns session statistics. Averages are over receiver readings.
func (s *Session) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		TransmissionCount: len(s.Transmissions),
		MeasurementCount:  len(s.Measurements),
	}

	var errs, bits int
	for _, t := range s.Transmissions {
		if t.Success {
			stats.SuccessCount++
		}
		errs += t.BitErrors
		bits += t.FrameBits
	}
	if len(s.Transmissions) > 0 {
		stats.SuccessRate = float64(stats.SuccessCount) / float64(len(s.Transmissions))
	}
	if bits > 0 {
		stats.BitErrorRate = float64(errs) / float64(bits)
	}

	if len(s.Measurements) > 0 {
		var res, ent, coh float64
		for _, m := range s.Measurements {
			res += m.ReceiverResonance
			ent += m.ReceiverEntropy
			coh += m.ReceiverCoherence
			if m.Corrected {
				stats.CorrectedCount++
			}
		}
		n := float64(len(s.Measurements))
		stats.AvgResonance = res / n
		stats.AvgEntropy = ent / n
		stats.AvgCoherence = coh / n
	}
	return stats
}

// Export writes session.json and measurements.jsonl under
// Config.ExportPath/<id> and returns that directory.
func (s *Session) Export() (dir string, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dir = filepath.Join(s.Config.ExportPath, s.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.WrapIO(err, errors.ErrExportFailed, "cannot create export directory").
			WithContext("path", dir)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", errors.WrapIO(err, errors.ErrExportFailed, "cannot encode session")
	}
	if err := os.WriteFile(filepath.Join(dir, "session.json"), data, 0o644); err != nil {
		return "", errors.WrapIO(err, errors.ErrExportFailed, "cannot write session.json").
			WithContext("path", dir)
	}

	f, err := os.Create(filepath.Join(dir, "measurements.jsonl"))
	if err != nil {
		return "", errors.WrapIO(err, errors.ErrExportFailed, "cannot create measurements.jsonl").
			WithContext("path", dir)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.WrapIO(cerr, errors.ErrExportFailed, "cannot close measurements.jsonl")
		}
	}()

	enc := json.NewEncoder(f)
	for _, m := range s.Measurements {
		if err := enc.Encode(m); err != nil {
			return "", errors.WrapIO(err, errors.ErrExportFailed, "cannot write measurement").
				WithContext("measurement_id", m.ID)
		}
	}
	return dir, nil
}

var csvHeader = []string{
	"transmission_id", "message_id", "sequence", "cycle", "mode",
	"sender_resonance", "receiver_resonance", "receiver_entropy", "receiver_coherence",
	"coupling_resonance", "corrected", "status",
}

// WriteCSV writes one row per measurement.
func (s *Session) WriteCSV(w io.Writer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return errors.WrapIO(err, errors.ErrExportFailed, "cannot write csv header")
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }
	for _, m := range s.Measurements {
		row := []string{
			m.TransmissionID,
			strconv.Itoa(m.MessageID),
			strconv.Itoa(m.Sequence),
			strconv.Itoa(m.Cycle),
			m.Mode,
			f(m.SenderResonance),
			f(m.ReceiverResonance),
			f(m.ReceiverEntropy),
			f(m.ReceiverCoherence),
			f(m.CouplingResonance),
			strconv.FormatBool(m.Corrected),
			string(m.Status),
		}
		if err := cw.Write(row); err != nil {
			return errors.WrapIO(err, errors.ErrExportFailed, "cannot write csv row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.WrapIO(err, errors.ErrExportFailed, "cannot flush csv")
	}
	return nil
}
