package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/dataviz-search/internal/core/registry"
)

type inspectorFake struct {
	vectors []string
	err     error
}

func (f inspectorFake) NamedVectors(context.Context) ([]string, error) {
	return f.vectors, f.err
}

func TestCheckSchema(t *testing.T) {
	expected := []string{"plot_type_vector", "section_11_description_vector"}

	tests := []struct {
		name      string
		inspector inspectorFake
		strict    bool
		wantErr   bool
	}{
		{name: "all present", inspector: inspectorFake{vectors: []string{"section_11_description_vector", "plot_type_vector", "extra"}}, strict: true},
		{name: "missing lenient", inspector: inspectorFake{vectors: []string{"plot_type_vector"}}},
		{name: "missing strict", inspector: inspectorFake{vectors: []string{"plot_type_vector"}}, strict: true, wantErr: true},
		{name: "unreachable lenient", inspector: inspectorFake{err: errors.New("dial tcp: refused")}},
		{name: "unreachable strict", inspector: inspectorFake{err: errors.New("dial tcp: refused")}, strict: true, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckSchema(context.Background(), tc.inspector, expected, tc.strict)
			if (err != nil) != tc.wantErr {
				t.Fatalf("CheckSchema() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestNewDetectorStrategies(t *testing.T) {
	reg, err := registry.Load()
	if err != nil {
		t.Fatalf("registry.Load() error = %v", err)
	}
	for _, strategy := range []string{"", "llm", "keyword"} {
		if _, err := newDetector(strategy, nil, reg); err != nil {
			t.Fatalf("newDetector(%q) error = %v", strategy, err)
		}
	}
	if _, err := newDetector("regex", nil, reg); err == nil {
		t.Fatalf("expected error for unknown strategy")
	}
}
