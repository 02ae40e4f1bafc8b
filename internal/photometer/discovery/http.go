package discovery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/tessw/photocal/internal/httputil"
	"github.com/tessw/photocal/internal/photometer/payload"
)

// DefaultDeviceURL is the test photometer's config endpoint.
const DefaultDeviceURL = "http://192.168.4.1/config"

// DefaultTimeout matches the 3-second budget specified for all device HTTP
// operations.
const DefaultTimeout = 3 * time.Second

var (
	nameRE     = regexp.MustCompile(`(stars\d+)`)
	macRE      = regexp.MustCompile(`MAC: ([0-9a-fA-F]{2}(?::[0-9a-fA-F]{2}){5})`)
	firmwareRE = regexp.MustCompile(`Compiled: (.+?)<br>`)
	// ZPRegexp also serves the ZP Updater's verify step.
	ZPRegexp   = regexp.MustCompile(`(ZP|CI.*): (\d{1,2}\.\d{1,2})`)
	offsetRE   = regexp.MustCompile(`Offset Hz: (\d{1,3}\.\d{1,3})<br>`)
)

// HTTPDiscoverer queries the test photometer's /config page and extracts
// its device descriptor.
type HTTPDiscoverer struct {
	client  httputil.HTTPClient
	url     string
	timeout time.Duration
}

// NewHTTPDiscoverer creates an HTTPDiscoverer against the given client and
// URL. A nil client defaults to httputil.NewStandardClient(nil); an empty
// url defaults to DefaultDeviceURL.
func NewHTTPDiscoverer(client httputil.HTTPClient, url string) *HTTPDiscoverer {
	if client == nil {
		client = httputil.NewStandardClient(nil)
	}
	if url == "" {
		url = DefaultDeviceURL
	}
	return &HTTPDiscoverer{client: client, url: url, timeout: DefaultTimeout}
}

// Discover fetches and parses the device descriptor. Fields absent from the
// response keep their zero value defaults; present-but-malformed numeric
// fields fail with ErrMalformedField.
func (d *HTTPDiscoverer) Discover(ctx context.Context) (payload.Info, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return payload.Info{}, newError(ErrMalformedField, "build discovery request", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return payload.Info{}, newError(ErrTimeout, "discovery request timed out", err)
		}
		return payload.Info{}, newError(ErrConnRefused, "discovery request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return payload.Info{}, newError(ErrTimeout, "reading discovery response body", err)
	}

	return parseConfigPage(string(body))
}

func parseConfigPage(body string) (payload.Info, error) {
	var info payload.Info

	if m := nameRE.FindStringSubmatch(body); m != nil {
		info.Name = m[1]
	}
	if m := macRE.FindStringSubmatch(body); m != nil {
		info.MAC = m[1]
	}
	if m := firmwareRE.FindStringSubmatch(body); m != nil {
		info.Firmware = m[1]
	}
	if m := ZPRegexp.FindStringSubmatch(body); m != nil {
		v, err := strconv.ParseFloat(m[2], 32)
		if err != nil {
			return payload.Info{}, newError(ErrMalformedField, fmt.Sprintf("zero-point field %q", m[2]), err)
		}
		info.ZP = float32(v)
	}
	if m := offsetRE.FindStringSubmatch(body); m != nil {
		v, err := strconv.ParseFloat(m[1], 32)
		if err != nil {
			return payload.Info{}, newError(ErrMalformedField, fmt.Sprintf("frequency offset field %q", m[1]), err)
		}
		info.FreqOffset = float32(v)
	}

	return applyDefaults(info), nil
}
