package transform

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/darshan-rambhia/voltline/internal/model"
	"github.com/darshan-rambhia/voltline/internal/remote"
)

// timestampLayouts are tried in order. Zone-less values are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp converts a remote timestamp into unix milliseconds. An
// empty string maps to 0, meaning "not reported". Bare integers are taken as
// milliseconds already.
func ParseTimestamp(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ms < 0 {
			return 0, fmt.Errorf("negative timestamp %d", ms)
		}
		return ms, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			if t.Before(time.UnixMilli(0)) {
				return 0, fmt.Errorf("timestamp %q before epoch", s)
			}
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("unrecognized timestamp %q", s)
}

func parseDates(created, updated string) (int64, int64, error) {
	c, err := ParseTimestamp(created)
	if err != nil {
		return 0, 0, fmt.Errorf("dateCreated: %w", err)
	}
	u, err := ParseTimestamp(updated)
	if err != nil {
		return 0, 0, fmt.Errorf("dateUpdated: %w", err)
	}
	return c, u, nil
}

// Field tables. Each function names every column it fills; unmapped remote
// fields are dropped.

func mapBuilding(in remote.Building) (model.Building, error) {
	created, updated, err := parseDates(in.DateCreated, in.DateUpdated)
	if err != nil {
		return model.Building{}, err
	}
	out := model.Building{
		ID:          in.ID,
		Name:        in.Name,
		Description: in.Description,
		ExactType:   in.ExactType,
		DateCreated: created,
		DateUpdated: updated,
	}
	if a := in.Address; a != nil {
		out.StreetAddress = a.StreetAddress
		out.Locality = a.Locality
		out.Region = a.Region
		out.PostalCode = a.PostalCode
		out.Country = a.CountryName
	}
	if g := in.Geolocation; g != nil {
		out.Latitude = g.Latitude
		out.Longitude = g.Longitude
	}
	return out, nil
}

func mapFloor(in remote.Floor, buildingID string) (model.Floor, error) {
	created, updated, err := parseDates(in.DateCreated, in.DateUpdated)
	if err != nil {
		return model.Floor{}, err
	}
	return model.Floor{
		ID:          in.ID,
		BuildingID:  buildingID,
		Name:        in.Name,
		Description: in.Description,
		Level:       in.Level,
		DateCreated: created,
		DateUpdated: updated,
	}, nil
}

func mapSpace(in remote.Space, floorID, buildingID string) (model.Space, error) {
	created, updated, err := parseDates(in.DateCreated, in.DateUpdated)
	if err != nil {
		return model.Space{}, err
	}
	return model.Space{
		ID:          in.ID,
		FloorID:     floorID,
		BuildingID:  buildingID,
		Name:        in.Name,
		Description: in.Description,
		ExactType:   in.ExactType,
		DateCreated: created,
		DateUpdated: updated,
	}, nil
}

func mapPoint(in remote.Point, loc location) model.Point {
	out := model.Point{
		ID:          in.ID,
		BuildingID:  loc.buildingID,
		FloorID:     loc.floorID,
		SpaceID:     loc.spaceID,
		Name:        in.Name,
		Description: in.Description,
		ExactType:   in.ExactType,
	}
	if in.Unit != nil {
		out.UnitName = in.Unit.Name
	}
	return out
}

var errMultipleValues = errors.New("more than one value field set")

func mapReading(in remote.SeriesValue, pointID string) (model.Reading, error) {
	ts, err := ParseTimestamp(in.Timestamp)
	if err != nil {
		return model.Reading{}, fmt.Errorf("timestamp: %w", err)
	}

	set := 0
	var v model.Value
	if in.Float64Value != nil {
		set++
		v = model.Float64Value(*in.Float64Value)
	}
	if in.Float32Value != nil {
		set++
		v = model.Float32Value(*in.Float32Value)
	}
	if in.StringValue != nil {
		set++
		v = model.StringValue(*in.StringValue)
	}
	if in.BoolValue != nil {
		set++
		v = model.BoolValue(*in.BoolValue)
	}
	if set > 1 {
		return model.Reading{}, errMultipleValues
	}

	return model.Reading{PointID: pointID, Timestamp: ts, Value: v}, nil
}
