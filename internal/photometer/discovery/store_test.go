package discovery

import (
	"context"
	"errors"
	"testing"
)

type fakeConfigReader struct {
	props []Property
	err   error
}

func (f *fakeConfigReader) ReadSection(ctx context.Context, section string) ([]Property, error) {
	return f.props, f.err
}

func (f *fakeConfigReader) ReadProperties(ctx context.Context, section string, exclude map[string]struct{}) ([]Property, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []Property
	for _, p := range f.props {
		if _, excluded := exclude[p.Name]; excluded {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func TestStoreDiscoverer_MapsKnownProperties(t *testing.T) {
	reader := &fakeConfigReader{props: []Property{
		{Name: "model", Value: "TESS-W"},
		{Name: "name", Value: "stess1"},
		{Name: "mac", Value: "11:22:33:44:55:66"},
		{Name: "firmware", Value: "1.0"},
		{Name: "sensor", Value: "TSL237"},
		{Name: "zp", Value: "20.44"},
		{Name: "freq_offset", Value: "0.0"},
		{Name: "endpoint", Value: "should-be-excluded"},
		{Name: "old_proto", Value: "should-be-excluded"},
	}}

	d := NewStoreDiscoverer(reader)
	info, err := d.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if info.Name != "stess1" || info.MAC != "11:22:33:44:55:66" || info.ZP != 20.44 {
		t.Errorf("info = %+v", info)
	}
}

func TestStoreDiscoverer_UnknownPropertyIgnored(t *testing.T) {
	reader := &fakeConfigReader{props: []Property{
		{Name: "name", Value: "stess1"},
		{Name: "bogus", Value: "whatever"},
	}}
	d := NewStoreDiscoverer(reader)
	info, err := d.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if info.Name != "stess1" {
		t.Errorf("Name = %q, want stess1", info.Name)
	}
}

func TestStoreDiscoverer_ReaderError(t *testing.T) {
	reader := &fakeConfigReader{err: errors.New("disk full")}
	d := NewStoreDiscoverer(reader)
	_, err := d.Discover(context.Background())
	if err == nil {
		t.Fatal("expected a config store error")
	}
}
