// Package zpupdate writes a new zero-point constant to the test photometer
// over HTTP and verifies it by reading the device back.
package zpupdate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/tessw/photocal/internal/httputil"
	"github.com/tessw/photocal/internal/photometer/discovery"
)

// DefaultBaseURL is the test photometer's HTTP base address.
const DefaultBaseURL = "http://192.168.4.1"

// DefaultTimeout is the per-request budget, matching discovery's.
const DefaultTimeout = 3 * time.Second

// VerifyError is returned when the post-write readback does not contain a
// parseable zero-point field at all.
type VerifyError struct {
	Err error
}

func (e *VerifyError) Error() string { return fmt.Sprintf("zpupdate: verify failed: %v", e.Err) }
func (e *VerifyError) Unwrap() error { return e.Err }

// MismatchError is returned when the readback zero-point does not equal the
// value that was written.
type MismatchError struct {
	Written, Read float64
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("zpupdate: mismatch after write: wrote %.2f, device reports %.2f", e.Written, e.Read)
}

// Updater writes and verifies a zero-point value against the test device.
type Updater struct {
	client  httputil.HTTPClient
	baseURL string
	timeout time.Duration
}

// New creates an Updater. A nil client defaults to httputil.NewStandardClient(nil);
// an empty baseURL defaults to DefaultBaseURL.
func New(client httputil.HTTPClient, baseURL string) *Updater {
	if client == nil {
		client = httputil.NewStandardClient(nil)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Updater{client: client, baseURL: baseURL, timeout: DefaultTimeout}
}

// Update writes zp (rounded to 2dp by the caller) to both the legacy and
// current endpoints, then verifies it took effect by reading the device's
// /config page back. Both write endpoints are attempted unconditionally;
// the device accepts whichever one it understands and ignores the other.
func (u *Updater) Update(ctx context.Context, zp float64) error {
	formatted := fmt.Sprintf("%.2f", zp)

	legacyErr := u.get(ctx, fmt.Sprintf("%s/SetZP?nZP1=%s", u.baseURL, formatted))
	currentErr := u.get(ctx, fmt.Sprintf("%s/setconst?cons=%s", u.baseURL, formatted))
	if legacyErr != nil {
		return fmt.Errorf("zpupdate: legacy write failed: %w", legacyErr)
	}
	if currentErr != nil {
		return fmt.Errorf("zpupdate: current write failed: %w", currentErr)
	}

	readBack, err := u.verify(ctx)
	if err != nil {
		return &VerifyError{Err: err}
	}

	written, _ := strconv.ParseFloat(formatted, 64)
	if readBack != written {
		return &MismatchError{Written: written, Read: readBack}
	}
	return nil
}

func (u *Updater) get(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (u *Updater) verify(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.baseURL+"/config", nil)
	if err != nil {
		return 0, err
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}

	m := discovery.ZPRegexp.FindStringSubmatch(string(body))
	if m == nil {
		return 0, fmt.Errorf("zero-point field not found in config page")
	}
	v, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0, fmt.Errorf("zero-point field %q: %w", m[2], err)
	}
	return v, nil
}
