package domain

import (
	"errors"
	"testing"
)

func TestSpatialRefSysValidate(t *testing.T) {
	valid := SpatialRefSys{
		ID:                     25832,
		Name:                   "ETRS 1989 / UTM zone 32N",
		Organization:           "EPSG",
		OrganizationCoordSysID: 25832,
		Definition:             `PROJCS["ETRS_1989_UTM_Zone_32N"]`,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*SpatialRefSys)
	}{
		{"missing name", func(s *SpatialRefSys) { s.Name = "" }},
		{"missing organization", func(s *SpatialRefSys) { s.Organization = "" }},
		{"missing definition", func(s *SpatialRefSys) { s.Definition = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.mutate(&s)
			if err := s.Validate(); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Validate() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestBuiltinSRS(t *testing.T) {
	ids := map[int]bool{}
	for _, s := range BuiltinSRS() {
		if err := s.Validate(); err != nil {
			t.Errorf("builtin %d invalid: %v", s.ID, err)
		}
		ids[s.ID] = true
	}
	for _, id := range []int{SRSUndefinedCartesian, SRSUndefinedGeographic, SRSWGS84} {
		if !ids[id] {
			t.Errorf("builtin srs %d missing", id)
		}
	}
}
