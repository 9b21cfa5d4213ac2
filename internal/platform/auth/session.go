package auth

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const (
	RoleAdmin     = "admin"
	RolePhysician = "physician"
	RoleNurse     = "nurse"
	RolePatient   = "patient"
)

var ErrForbidden = errors.New("session may not access this patient")

// Session is the caller's identity for one request: who they are, which
// roles they hold and, for patients, whose diary they own. Services receive
// it as an argument rather than reading shared state.
type Session struct {
	UserID    string
	Roles     []string
	PatientID uuid.UUID
}

func (s Session) HasRole(role string) bool {
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsClinician reports whether the session may select any patient.
func (s Session) IsClinician() bool {
	return s.HasRole(RoleAdmin) || s.HasRole(RolePhysician) || s.HasRole(RoleNurse)
}

// CanAccess reports whether the session may read or write patientID's diary.
func (s Session) CanAccess(patientID uuid.UUID) bool {
	if s.IsClinician() {
		return true
	}
	return s.HasRole(RolePatient) && s.PatientID != uuid.Nil && s.PatientID == patientID
}

// Authorize returns ErrForbidden when the session cannot access patientID.
func (s Session) Authorize(patientID uuid.UUID) error {
	if !s.CanAccess(patientID) {
		return fmt.Errorf("%w: %s", ErrForbidden, patientID)
	}
	return nil
}

func sessionFromClaims(c *Claims) (Session, error) {
	sess := Session{UserID: c.Subject, Roles: c.Roles}
	if c.PatientID != "" {
		pid, err := uuid.Parse(c.PatientID)
		if err != nil {
			return Session{}, fmt.Errorf("invalid patient_id claim")
		}
		sess.PatientID = pid
	}
	if sess.HasRole(RolePatient) && sess.PatientID == uuid.Nil {
		return Session{}, fmt.Errorf("patient token without patient_id claim")
	}
	return sess, nil
}
