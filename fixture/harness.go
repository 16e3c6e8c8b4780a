// Package fixture records API calls made through a [one.Client] and replays
// them offline.
//
// A [Harness] is a [one.Transport] wrapping the live transport. In record
// mode every call is forwarded and its outcome, or the error it raised, is
// written to a JSON file. In replay mode the live transport is never used:
// outcomes are read back from those files and recorded errors are raised
// again with the same kind and message.
//
// Fixtures are stored as
//
//	<dir>/<unit test>/<method>_<signature>_<instance>.json
//
// where signature is the MD5 of the canonicalized parameters and instance
// counts identical calls within the current unit test. The order of calls
// within a unit test must therefore be deterministic.
//
//	live, _ := one.NewXMLRPCTransport(endpoint, one.TransportConfig{})
//	h, _ := fixture.New(live, "testdata/fixtures", fixture.WithMode(fixture.ModeFromEnv()))
//	client, _ := one.NewClient(endpoint, session, one.WithTransport(h))
//
//	func TestHostInfo(t *testing.T) {
//	    require.NoError(t, h.SetUnitTest(t.Name()))
//	    host, err := client.CallNode(ctx, "host.info", 0)
//	    // ...
//	}
package fixture

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/rs/zerolog"

	one "github.com/privaz/one-go"
)

// EnvReplay selects replay mode in [ModeFromEnv] when set to a true value.
const EnvReplay = "ONE_FIXTURE_REPLAY"

// initialUnitTest scopes calls made before the first SetUnitTest.
const initialUnitTest = "init"

// Mode selects whether a Harness records or replays.
type Mode int

const (
	// Record forwards calls to the live transport and stores their outcome.
	Record Mode = iota
	// Replay answers calls from stored fixtures.
	Replay
)

func (m Mode) String() string {
	if m == Replay {
		return "replay"
	}
	return "record"
}

// ModeFromEnv returns Replay when EnvReplay holds a true value, Record
// otherwise.
func ModeFromEnv() Mode {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(EnvReplay)))
	if err == nil && v {
		return Replay
	}
	return Record
}

// Option configures a Harness.
type Option func(*Harness)

// WithMode sets the harness mode. Defaults to Record.
func WithMode(m Mode) Option {
	return func(h *Harness) {
		h.mode = m
	}
}

// WithReplay selects Replay when replay is true and Record otherwise.
func WithReplay(replay bool) Option {
	if replay {
		return WithMode(Replay)
	}
	return WithMode(Record)
}

// WithLogger sets the logger receiving one event per intercepted call.
func WithLogger(l zerolog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// Harness is a record/replay [one.Transport].
type Harness struct {
	inner  one.Transport
	root   string
	mode   Mode
	logger zerolog.Logger
	now    func() time.Time

	mu       sync.Mutex
	unit     string
	unitDir  string
	counters map[string]int
}

var _ one.Transport = (*Harness)(nil)

// New returns a harness storing fixtures under dir, which is created if
// needed. inner may be nil in replay mode.
func New(inner one.Transport, dir string, opts ...Option) (*Harness, error) {
	h := &Harness{
		inner:  inner,
		root:   dir,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}

	if h.mode == Record && h.inner == nil {
		return nil, errors.New("fixture: record mode needs a live transport")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("fixture: create %s: %w", dir, err)
	}
	if err := h.SetUnitTest(initialUnitTest); err != nil {
		return nil, err
	}
	return h, nil
}

// Mode returns the harness mode.
func (h *Harness) Mode() Mode {
	return h.mode
}

// UnitTest returns the current unit test name.
func (h *Harness) UnitTest() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.unit
}

// SetUnitTest scopes the following calls to name: fixtures go to the
// sub-directory name, created if needed, and instance counters restart at 0.
func (h *Harness) SetUnitTest(name string) error {
	if name == "" {
		return errors.New("fixture: empty unit test name")
	}
	dir := filepath.Join(h.root, filepath.FromSlash(name))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fixture: create %s: %w", dir, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.unit = name
	h.unitDir = dir
	h.counters = make(map[string]int)
	return nil
}

// Invoke records or replays one call.
func (h *Harness) Invoke(ctx context.Context, method string, params []any) (one.Envelope, error) {
	path, err := h.nextPath(method, params)
	if err != nil {
		return one.Envelope{}, err
	}
	if h.mode == Replay {
		return h.replay(method, path)
	}
	return h.record(ctx, method, params, path)
}

// nextPath computes the fixture file of a call and advances the instance
// counter of its signature.
func (h *Harness) nextPath(method string, params []any) (string, error) {
	sig, err := Signature(params)
	if err != nil {
		return "", err
	}
	key := method + "_" + sig

	h.mu.Lock()
	defer h.mu.Unlock()
	instance := 0
	if last, ok := h.counters[key]; ok {
		instance = last + 1
	}
	h.counters[key] = instance
	return filepath.Join(h.unitDir, fmt.Sprintf("%s_%d.json", key, instance)), nil
}

func (h *Harness) record(ctx context.Context, method string, params []any, path string) (one.Envelope, error) {
	env, callErr := h.inner.Invoke(ctx, method, params)

	rec := &record{
		Method:     method,
		RecordedAt: strfmt.DateTime(h.now().UTC()),
	}
	if callErr != nil {
		exc := captureException(callErr)
		rec.Exception = &exc
	} else {
		rec.Outcome = &env
		rec.PayloadType = payloadType(env.Payload)
	}

	if err := writeRecord(path, rec); err != nil {
		h.logger.Error().Err(err).Str("method", method).Str("fixture", path).Msg("cannot write fixture")
		if callErr != nil {
			return env, callErr
		}
		return one.Envelope{}, fmt.Errorf("fixture: write %s: %w", filepath.Base(path), err)
	}

	h.logger.Debug().Str("method", method).Str("fixture", path).Bool("exception", callErr != nil).Msg("recorded")
	return env, callErr
}

func (h *Harness) replay(method, path string) (one.Envelope, error) {
	rec, err := readRecord(path)
	if errors.Is(err, fs.ErrNotExist) {
		h.logger.Warn().Str("method", method).Str("fixture", path).Msg("fixture missing")
		return one.Envelope{}, &one.Error{
			Kind:    one.KindFixtureMissing,
			Method:  method,
			Message: fmt.Sprintf("could not read fixture %s, if any parameter changed you must re-record fixtures", path),
			Cause:   err,
		}
	}
	if err != nil {
		return one.Envelope{}, &one.Error{
			Kind:    one.KindGeneric,
			Method:  method,
			Message: "corrupt fixture " + path,
			Cause:   err,
		}
	}

	h.logger.Debug().Str("method", method).Str("fixture", path).Bool("exception", rec.Exception != nil).Msg("replayed")

	switch {
	case rec.Exception != nil:
		return one.Envelope{}, reconstruct(*rec.Exception)
	case rec.Outcome != nil:
		return *rec.Outcome, nil
	default:
		return one.Envelope{}, &one.Error{
			Kind:    one.KindGeneric,
			Method:  method,
			Message: "fixture " + path + " holds neither outcome nor exception",
		}
	}
}
