package domain

import "fmt"

// Well-known spatial reference system ids.
const (
	SRSUndefinedCartesian  = -1
	SRSUndefinedGeographic = 0
	SRSWGS84               = 4326
)

const wgs84Definition = `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,` +
	`AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],` +
	`UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AXIS["Latitude",NORTH],` +
	`AXIS["Longitude",EAST],AUTHORITY["EPSG","4326"]]`

const etrs89UTM32NDefinition = `PROJCS["ETRS_1989_UTM_Zone_32N",GEOGCS["GCS_ETRS_1989",DATUM["D_ETRS_1989",` +
	`SPHEROID["GRS_1980",6378137.0,298.257222101]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],` +
	`PROJECTION["Transverse_Mercator"],PARAMETER["False_Easting",500000.0],PARAMETER["False_Northing",0.0],` +
	`PARAMETER["Central_Meridian",9.0],PARAMETER["Scale_Factor",0.9996],PARAMETER["Latitude_Of_Origin",0.0],` +
	`UNIT["Meter",1.0]]`

// SpatialRefSys identifies a coordinate reference system. Rows are never
// updated once inserted.
type SpatialRefSys struct {
	ID                     int    // srs_id, caller-assigned
	Name                   string // srs_name
	Organization           string // e.g. "EPSG"
	OrganizationCoordSysID int    // code assigned by the organization
	Definition             string // WKT definition
	Description            string // optional
}

// Validate checks that the mandatory columns are set.
func (s SpatialRefSys) Validate() error {
	switch {
	case s.Name == "":
		return &ValidationError{Field: "srs_name", Value: s.Name, Message: "name is required"}
	case s.Organization == "":
		return &ValidationError{Field: "organization", Value: s.Organization, Message: "organization is required"}
	case s.Definition == "":
		return &ValidationError{Field: "definition", Value: s.Definition, Message: "definition is required"}
	}
	return nil
}

// String returns "ORG:CODE name".
func (s SpatialRefSys) String() string {
	return fmt.Sprintf("%s:%d %s", s.Organization, s.OrganizationCoordSysID, s.Name)
}

// BuiltinSRS returns the rows every GeoPackage must contain.
func BuiltinSRS() []SpatialRefSys {
	return []SpatialRefSys{
		{
			ID:                     SRSUndefinedCartesian,
			Name:                   "Undefined cartesian SRS",
			Organization:           "NONE",
			OrganizationCoordSysID: -1,
			Definition:             "undefined",
			Description:            "undefined cartesian coordinate reference system",
		},
		{
			ID:                     SRSUndefinedGeographic,
			Name:                   "Undefined geographic SRS",
			Organization:           "NONE",
			OrganizationCoordSysID: 0,
			Definition:             "undefined",
			Description:            "undefined geographic coordinate reference system",
		},
		{
			ID:                     SRSWGS84,
			Name:                   "WGS 84 geodetic",
			Organization:           "EPSG",
			OrganizationCoordSysID: 4326,
			Definition:             wgs84Definition,
			Description:            "longitude/latitude coordinates in decimal degrees on the WGS 84 spheroid",
		},
	}
}

// ETRS89UTM32N returns EPSG:25832, the projected system used for German
// and Danish cadastral data.
func ETRS89UTM32N() SpatialRefSys {
	return SpatialRefSys{
		ID:                     25832,
		Name:                   "ETRS 1989 / UTM zone 32N",
		Organization:           "EPSG",
		OrganizationCoordSysID: 25832,
		Definition:             etrs89UTM32NDefinition,
	}
}
