package validation

import (
	"context"
	"time"

	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/normalizers"
)

const nationalIDLength = 11

// Format checks field shapes and ranges.
type Format struct {
	// Now is the reference for "in the future" checks. Zero means time.Now.
	Now func() time.Time
}

func (Format) Level() int   { return 2 }
func (Format) Name() string { return "format" }

func (f Format) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now().UTC()
}

func notFuture(out *Findings, r models.StagingRecord, field string, t *time.Time, now time.Time) {
	if t != nil && t.After(now) {
		out.Error(r, "future_date", field, "%s %s is in the future", field, t.Format("2006-01-02"))
	}
}

func (f Format) Validate(_ context.Context, ds *Dataset, out *Findings) error {
	now := f.now()

	out.Scan(ds.Records[models.EntityKindBuilding], func(r models.StagingRecord) {
		b := r.(*models.StagingBuilding)
		if b.Latitude != nil && (*b.Latitude < -90 || *b.Latitude > 90) {
			out.Error(r, "out_of_range", "latitude", "latitude %v is out of range", *b.Latitude)
		}
		if b.Longitude != nil && (*b.Longitude < -180 || *b.Longitude > 180) {
			out.Error(r, "out_of_range", "longitude", "longitude %v is out of range", *b.Longitude)
		}
		if (b.Latitude == nil) != (b.Longitude == nil) {
			out.Warn(r, "partial_location", "latitude", "only one coordinate is present")
		}
		if b.NumberOfFloors < 0 {
			out.Error(r, "negative", "number_of_floors", "number_of_floors cannot be negative")
		}
		if b.NumberOfUnits < 0 {
			out.Error(r, "negative", "number_of_units", "number_of_units cannot be negative")
		}
	})

	out.Scan(ds.Records[models.EntityKindPropertyUnit], func(r models.StagingRecord) {
		u := r.(*models.StagingPropertyUnit)
		if u.AreaSquareMeters != nil && *u.AreaSquareMeters <= 0 {
			out.Error(r, "out_of_range", "area_square_meters", "area_square_meters must be positive")
		}
		if u.FloorNumber != nil && (*u.FloorNumber < -5 || *u.FloorNumber > 200) {
			out.Warn(r, "unusual_value", "floor_number", "floor_number %d is unusual", *u.FloorNumber)
		}
	})

	out.Scan(ds.Records[models.EntityKindPerson], func(r models.StagingRecord) {
		p := r.(*models.StagingPerson)
		if p.NationalID != "" {
			id := normalizers.NormalizeCode(p.NationalID)
			if len(id) != nationalIDLength || normalizers.DigitsOnly(id) != id {
				out.Error(r, "invalid_format", "national_id", "national_id must be %d digits", nationalIDLength)
			}
		}
		if p.MobileNumber != "" {
			if n := len(normalizers.NormalizePhone(p.MobileNumber)); n < 9 || n > 15 {
				out.Warn(r, "invalid_format", "mobile_number", "mobile_number does not look like a phone number")
			}
		}
		notFuture(out, r, "date_of_birth", p.DateOfBirth, now)
		if p.DateOfBirth != nil && p.DateOfBirth.Year() < 1900 {
			out.Warn(r, "unusual_value", "date_of_birth", "date_of_birth is before 1900")
		}
	})

	out.Scan(ds.Records[models.EntityKindHousehold], func(r models.StagingRecord) {
		h := r.(*models.StagingHousehold)
		if h.HouseholdSize < 0 {
			out.Error(r, "negative", "household_size", "household_size cannot be negative")
		} else if h.HouseholdSize == 0 {
			out.Warn(r, "missing_value", "household_size", "household_size is not recorded")
		}
	})

	out.Scan(ds.Records[models.EntityKindPersonPropertyRelation], func(r models.StagingRecord) {
		rel := r.(*models.StagingPersonPropertyRelation)
		if rel.OwnershipShare != nil && (*rel.OwnershipShare <= 0 || *rel.OwnershipShare > 1) {
			out.Error(r, "out_of_range", "ownership_share", "ownership_share %v must be in (0, 1]", *rel.OwnershipShare)
		}
		notFuture(out, r, "start_date", rel.StartDate, now)
	})

	out.Scan(ds.Records[models.EntityKindEvidence], func(r models.StagingRecord) {
		e := r.(*models.StagingEvidence)
		notFuture(out, r, "issued_at", e.IssuedAt, now)
		if e.AttachmentID != "" && e.AttachmentStorageKey == "" {
			out.Error(r, "missing_attachment", "attachment_id", "attachment %q was not found in the package", e.AttachmentID)
		}
	})

	out.Scan(ds.Records[models.EntityKindClaim], func(r models.StagingRecord) {
		c := r.(*models.StagingClaim)
		if c.SubmittedAt != nil && c.SubmittedAt.After(now) {
			out.Warn(r, "future_date", "submitted_at", "submitted_at is in the future")
		}
	})

	out.Scan(ds.Records[models.EntityKindSurvey], func(r models.StagingRecord) {
		s := r.(*models.StagingSurvey)
		notFuture(out, r, "survey_date", s.SurveyDate, now)
	})
	return nil
}
