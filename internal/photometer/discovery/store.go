package discovery

import (
	"context"
	"strconv"

	"github.com/tessw/photocal/internal/monitoring"
	"github.com/tessw/photocal/internal/photometer/payload"
)

// ConfigReader is the opaque configuration-store collaborator. The core
// never writes to the store; both operations return raw string values and
// numeric coercion is this package's responsibility.
type ConfigReader interface {
	// ReadSection returns every (property, value) pair in the named section.
	ReadSection(ctx context.Context, section string) ([]Property, error)
	// ReadProperties returns the (property, value) pairs in section whose
	// names are not present in exclude.
	ReadProperties(ctx context.Context, section string, exclude map[string]struct{}) ([]Property, error)
}

// Property is one (name, value) row from the configuration store.
type Property struct {
	Name  string
	Value string
}

// refDeviceSection is the store section holding the reference photometer's
// descriptor.
const refDeviceSection = "ref-device"

// StoreDiscoverer obtains the reference photometer's device descriptor from
// a ConfigReader, excluding the "endpoint" and "old_proto" rows which
// belong to the transport layer, not the device descriptor.
type StoreDiscoverer struct {
	reader ConfigReader
}

// NewStoreDiscoverer creates a StoreDiscoverer over the given reader.
func NewStoreDiscoverer(reader ConfigReader) *StoreDiscoverer {
	return &StoreDiscoverer{reader: reader}
}

// Discover runs the store read on a blocking worker goroutine so a
// cooperative caller is never stalled, per the concurrency model's
// delegation of store I/O to a blocking worker.
func (d *StoreDiscoverer) Discover(ctx context.Context) (payload.Info, error) {
	type result struct {
		info payload.Info
		err  error
	}
	done := make(chan result, 1)

	go func() {
		exclude := map[string]struct{}{"endpoint": {}, "old_proto": {}}
		props, err := d.reader.ReadProperties(ctx, refDeviceSection, exclude)
		if err != nil {
			done <- result{err: newError(ErrConfigStore, "reading ref-device section", err)}
			return
		}
		done <- result{info: propertiesToInfo(props)}
	}()

	select {
	case <-ctx.Done():
		return payload.Info{}, ctx.Err()
	case r := <-done:
		return r.info, r.err
	}
}

func propertiesToInfo(props []Property) payload.Info {
	var info payload.Info
	for _, p := range props {
		switch p.Name {
		case "model":
			info.Model = p.Value
		case "name":
			info.Name = p.Value
		case "mac":
			info.MAC = p.Value
		case "firmware":
			info.Firmware = p.Value
		case "sensor":
			info.Sensor = p.Value
		case "zp":
			if v, err := strconv.ParseFloat(p.Value, 32); err == nil {
				info.ZP = float32(v)
			}
		case "freq_offset":
			if v, err := strconv.ParseFloat(p.Value, 32); err == nil {
				info.FreqOffset = float32(v)
			}
		default:
			monitoring.Logf("store discovery: ignoring unrecognised property %q", p.Name)
		}
	}
	return applyDefaults(info)
}
