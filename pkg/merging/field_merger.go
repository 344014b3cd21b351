package merging

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/Ramsey-B/willow/pkg/models"
)

// FieldMerger copies business fields between two records of the same kind
// and reports where each surviving value came from.
type FieldMerger struct{}

// NewFieldMerger creates a new FieldMerger
func NewFieldMerger() *FieldMerger {
	return &FieldMerger{}
}

// FillGaps copies every field of src into dst where dst is empty. Fields
// set on dst are attributed to kept, copied fields to filled.
func (m *FieldMerger) FillGaps(dst, src any, kept, filled models.FieldSource) (map[string]models.FieldSource, error) {
	return m.merge(dst, src, func(dstEmpty, srcEmpty bool) (bool, models.FieldSource) {
		switch {
		case !dstEmpty:
			return false, kept
		case !srcEmpty:
			return true, filled
		}
		return false, ""
	})
}

// Overwrite copies every field set on src into dst. Fields only dst has are
// kept and attributed to fallback.
func (m *FieldMerger) Overwrite(dst, src any, winner, fallback models.FieldSource) (map[string]models.FieldSource, error) {
	return m.merge(dst, src, func(dstEmpty, srcEmpty bool) (bool, models.FieldSource) {
		switch {
		case !srcEmpty:
			return true, winner
		case !dstEmpty:
			return false, fallback
		}
		return false, ""
	})
}

type decideFunc func(dstEmpty, srcEmpty bool) (take bool, source models.FieldSource)

func (m *FieldMerger) merge(dst, src any, decide decideFunc) (map[string]models.FieldSource, error) {
	dv, sv := reflect.ValueOf(dst), reflect.ValueOf(src)
	if dv.Kind() != reflect.Pointer || dv.IsNil() || dv.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("merge target must be a pointer to a struct, got %T", dst)
	}
	if sv.Kind() != reflect.Pointer || sv.IsNil() {
		return nil, fmt.Errorf("merge source must be a pointer to a struct, got %T", src)
	}
	if dv.Type() != sv.Type() {
		return nil, fmt.Errorf("cannot merge %T into %T", src, dst)
	}
	dv, sv = dv.Elem(), sv.Elem()

	sources := map[string]models.FieldSource{}
	t := dv.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		df, sf := dv.Field(i), sv.Field(i)
		doCopy, source := decide(df.IsZero(), sf.IsZero())
		if doCopy {
			df.Set(detach(sf))
		}
		if source != "" {
			sources[fieldName(field)] = source
		}
	}
	return sources, nil
}

// detach copies pointer targets so the merged record never aliases the
// other side.
func detach(v reflect.Value) reflect.Value {
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return v
	}
	cp := reflect.New(v.Elem().Type())
	cp.Elem().Set(v.Elem())
	return cp
}

func fieldName(f reflect.StructField) string {
	if tag := f.Tag.Get("json"); tag != "" {
		if name, _, _ := strings.Cut(tag, ","); name != "" && name != "-" {
			return name
		}
	}
	return f.Name
}
