package store

import (
	"database/sql"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/crewcore/crew/pkg/errkind"
)

// Event is a raw observed fact captured during conversation, awaiting
// extraction into entities/edges/facts (spec §4.4 memory pipeline).
type Event struct {
	ID               string
	Content          string
	SourceBot        string
	Timestamp        time.Time
	Confidence       float64
	Embedding        []float32
	ExtractionStatus string // pending|extracted|skipped
}

func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		bits := math.Float32bits(f)
		buf[i*4] = byte(bits)
		buf[i*4+1] = byte(bits >> 8)
		buf[i*4+2] = byte(bits >> 16)
		buf[i*4+3] = byte(bits >> 24)
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	if len(buf) == 0 {
		return nil
	}
	out := make([]float32, len(buf)/4)
	for i := range out {
		bits := uint32(buf[i*4]) | uint32(buf[i*4+1])<<8 | uint32(buf[i*4+2])<<16 | uint32(buf[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}

// PutEvent inserts a new raw event row.
func (s *Store) PutEvent(e Event) (string, error) {
	id := e.ID
	if id == "" {
		id = uuid.NewString()
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	status := e.ExtractionStatus
	if status == "" {
		status = "pending"
	}
	_, err := s.Memory.Exec(`
		INSERT INTO events (id, content, source_bot, timestamp, confidence, embedding, extraction_status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, e.Content, e.SourceBot, ts.Format(time.RFC3339), e.Confidence, encodeEmbedding(e.Embedding), status)
	if err != nil {
		return "", errkind.Wrap(errkind.StoreWrite, "put event", err)
	}
	return id, nil
}

// PendingEvents returns events not yet extracted into entities/edges/facts.
func (s *Store) PendingEvents(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.Memory.Query(`
		SELECT id, content, source_bot, timestamp, confidence, embedding, extraction_status
		FROM events WHERE extraction_status = 'pending' ORDER BY timestamp ASC LIMIT ?
	`, limit)
	if err != nil {
		return nil, errkind.Wrap(errkind.StoreWrite, "query pending events", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// MarkExtracted flips an event's extraction_status.
func (s *Store) MarkExtracted(eventID, status string) error {
	_, err := s.Memory.Exec(`UPDATE events SET extraction_status = ? WHERE id = ?`, status, eventID)
	if err != nil {
		return errkind.Wrap(errkind.StoreWrite, "mark event extracted", err)
	}
	return nil
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var out []Event
	for rows.Next() {
		var e Event
		var ts string
		var embedding []byte
		if err := rows.Scan(&e.ID, &e.Content, &e.SourceBot, &ts, &e.Confidence, &embedding, &e.ExtractionStatus); err != nil {
			return nil, errkind.Wrap(errkind.StoreWrite, "scan event", err)
		}
		e.Timestamp, _ = time.Parse(time.RFC3339, ts)
		e.Embedding = decodeEmbedding(embedding)
		out = append(out, e)
	}
	return out, rows.Err()
}
