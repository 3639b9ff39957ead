package domain

import (
	"encoding/json"
	"fmt"
)

// Persisted table names.
const (
	TableStudents       = "students"
	TableClasses        = "classes"
	TableSections       = "sections"
	TableParticipations = "participation_records"
)

// Secondary index fields.
const (
	IndexSectionID = "sectionId"
	IndexStudentID = "studentId"
	IndexClassID   = "classId"
)

// Record is the envelope every entity is persisted in.
type Record struct {
	Table   string            `json:"table"`
	ID      string            `json:"id"`
	Indexes map[string]string `json:"indexes,omitempty"`
	Data    json.RawMessage   `json:"data"`
}

// StudentRecord wraps a student for persistence.
func StudentRecord(s Student) (Record, error) {
	idx := map[string]string{}
	if s.SectionID != nil {
		idx[IndexSectionID] = *s.SectionID
	}
	return newRecord(TableStudents, s.ID, idx, s)
}

// ClassRecordEnvelope wraps a class for persistence.
func ClassRecordEnvelope(c Class) (Record, error) {
	return newRecord(TableClasses, c.ID, nil, c)
}

// SectionRecord wraps a section for persistence.
func SectionRecord(s Section) (Record, error) {
	return newRecord(TableSections, s.ID, nil, s)
}

// ParticipationEnvelope wraps a participation event for persistence.
func ParticipationEnvelope(p ParticipationRecord) (Record, error) {
	return newRecord(TableParticipations, p.ID, map[string]string{
		IndexStudentID: p.StudentID,
		IndexClassID:   p.ClassID,
	}, p)
}

func newRecord(table, id string, indexes map[string]string, v any) (Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Record{}, fmt.Errorf("marshal %s/%s: %w", table, id, err)
	}
	return Record{Table: table, ID: id, Indexes: indexes, Data: data}, nil
}
