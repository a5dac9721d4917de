package repo

import (
	"context"
	"log/slog"

	"github.com/okoumis/tillsync/internal/model"
)

// ReferenceSource is the read surface for the small lookup tables, shared
// by [remote.Store] and [mirror.Store].
type ReferenceSource interface {
	Areas(ctx context.Context) ([]model.Area, error)
	Modifiers(ctx context.Context) ([]model.Modifier, error)
	Courses(ctx context.Context) ([]model.Course, error)
}

// Reference serves the lookup data the order screens need: floor areas,
// item modifiers, and serving courses.
type Reference struct {
	sel    *selector
	remote ReferenceSource
	local  ReferenceSource
}

// NewReference builds the lookup repository over a remote/local store pair.
func NewReference(remote, local ReferenceSource, settings Settings, prober Prober, log *slog.Logger) *Reference {
	return &Reference{
		sel:    &selector{settings: settings, prober: prober, log: log},
		remote: remote,
		local:  local,
	}
}

// GetAreas returns every floor area.
func (r *Reference) GetAreas(ctx context.Context) ([]model.Area, error) {
	return fetch(ctx, r.sel, "reference.get_areas", r.remote.Areas, r.local.Areas)
}

// GetModifiers returns every modifier.
func (r *Reference) GetModifiers(ctx context.Context) ([]model.Modifier, error) {
	return fetch(ctx, r.sel, "reference.get_modifiers", r.remote.Modifiers, r.local.Modifiers)
}

// GetCourses returns every serving course in serving order.
func (r *Reference) GetCourses(ctx context.Context) ([]model.Course, error) {
	return fetch(ctx, r.sel, "reference.get_courses", r.remote.Courses, r.local.Courses)
}
