// Package multi routes each committed entry to the sinks that want it.
package multi

import (
	"context"
	"errors"
	"fmt"

	"github.com/crimson-sun/waflog/internal/model"
	"github.com/crimson-sun/waflog/internal/sink"
)

// Route pairs a sink with the filter deciding which entries it receives.
type Route struct {
	Name   string
	Sink   sink.Sink
	Accept sink.Filter // nil accepts everything
}

// Multi delivers entries along its routes in order. A failing sink does not
// stop delivery to the ones after it; a done context does.
type Multi struct {
	routes []Route
}

// New creates a Multi that sends every entry to every sink.
func New(sinks ...sink.Sink) *Multi {
	routes := make([]Route, len(sinks))
	for i, s := range sinks {
		routes[i] = Route{Name: fmt.Sprintf("sink %d", i), Sink: s}
	}
	return &Multi{routes: routes}
}

// NewRouted creates a Multi over explicit routes.
func NewRouted(routes ...Route) *Multi {
	return &Multi{routes: routes}
}

// Write delivers the entry to each accepting sink. Errors are labelled with
// the route name and joined.
func (m *Multi) Write(ctx context.Context, entry model.Entry) error {
	var errs []error
	for _, r := range m.routes {
		if r.Accept != nil && !r.Accept(entry) {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Name, err))
			break
		}
		if err := r.Sink.Write(ctx, entry); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Close() error {
	var errs []error
	for _, r := range m.routes {
		if err := r.Sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Name, err))
		}
	}
	return errors.Join(errs...)
}
