package model

import (
	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin         Role = "ADMIN"
	RoleDoctor        Role = "DOCTOR"
	RoleLabTechnician Role = "LAB_TECHNICIAN"
	RoleReceptionist  Role = "RECEPTIONIST"
	RoleNurse         Role = "NURSE"
	RolePatient       Role = "PATIENT"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RoleLabTechnician, RoleReceptionist, RoleNurse, RolePatient:
		return true
	}
	return false
}

// Session is the authenticated caller as supplied by the session provider.
type Session struct {
	UserID uuid.UUID `json:"user_id"`
	Role   Role      `json:"role"`
}

// HasRole reports whether the session role is one of roles.
func (s *Session) HasRole(roles ...Role) bool {
	if s == nil {
		return false
	}
	for _, r := range roles {
		if s.Role == r {
			return true
		}
	}
	return false
}
