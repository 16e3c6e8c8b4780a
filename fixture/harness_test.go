package fixture_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	one "github.com/privaz/one-go"
	"github.com/privaz/one-go/fixture"
)

const session = "oneadmin:onepass"

const hostDocument = `<HOST><ID>3</ID><NAME>kvm-node-1</NAME><TEMPLATE><ARCH><![CDATA[x86_64]]></ARCH></TEMPLATE></HOST>`

// liveTransport stands in for a live endpoint and counts the calls it
// receives.
type liveTransport struct {
	calls  atomic.Int32
	answer func(n int32, method string, params []any) (one.Envelope, error)
}

func (l *liveTransport) Invoke(_ context.Context, method string, params []any) (one.Envelope, error) {
	n := l.calls.Add(1)
	return l.answer(n, method, params)
}

func newClient(t *testing.T, transport one.Transport) *one.Client {
	t.Helper()
	client, err := one.NewClient("http://unused", session, one.WithTransport(transport))
	require.NoError(t, err)
	return client
}

func fixturePath(t *testing.T, dir, unit, method string, params []any, instance int) string {
	t.Helper()
	sig, err := fixture.Signature(params)
	require.NoError(t, err)
	return filepath.Join(dir, unit, fmt.Sprintf("%s_%s_%d.json", method, sig, instance))
}

// TestHarness_RecordReplay verifies a record run followed by a replay run
// without any live transport.
//
// It verifies that:
//   - Recording writes the fixture at <dir>/<unit>/<method>_<sig>_0.json
//   - Replaying returns the recorded document
func TestHarness_RecordReplay(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	live := &liveTransport{answer: func(int32, string, []any) (one.Envelope, error) {
		return one.Envelope{Success: true, Payload: hostDocument}, nil
	}}
	recorder, err := fixture.New(live, dir)
	require.NoError(t, err)
	require.NoError(t, recorder.SetUnitTest("TestHostInfo"))

	// Act: record
	recorded, err := newClient(t, recorder).CallNode(context.Background(), "host.info", 3)
	require.NoError(t, err)

	// Assert: fixture file
	path := fixturePath(t, dir, "TestHostInfo", "one.host.info", []any{session, 3}, 0)
	assert.FileExists(t, path)
	assert.Equal(t, int32(1), live.calls.Load())

	// Act: replay with no live transport
	replayer, err := fixture.New(nil, dir, fixture.WithReplay(true))
	require.NoError(t, err)
	require.NoError(t, replayer.SetUnitTest("TestHostInfo"))
	replayed, err := newClient(t, replayer).CallNode(context.Background(), "host.info", 3)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, recorded.Get("NAME"), replayed.Get("NAME"))
	assert.Equal(t, "x86_64", replayed.Template("TEMPLATE").Text("ARCH"))
}

// TestHarness_FileFormat verifies the reserved keys of a fixture file.
func TestHarness_FileFormat(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	live := &liveTransport{answer: func(int32, string, []any) (one.Envelope, error) {
		return one.Envelope{Success: true, Payload: int64(12)}, nil
	}}
	h, err := fixture.New(live, dir)
	require.NoError(t, err)

	// Act
	_, err = h.Invoke(context.Background(), "one.vm.allocate", []any{session, "CPU = \"1\"\n", false})
	require.NoError(t, err)

	// Assert
	data, err := os.ReadFile(fixturePath(t, dir, "init", "one.vm.allocate", []any{session, "CPU = \"1\"\n", false}, 0))
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "one.vm.allocate", doc["method"])
	assert.NotEmpty(t, doc["recorded_at"])
	assert.NotContains(t, doc, "exception")
	require.Contains(t, doc, "outcome")
	assert.Equal(t, map[string]any{"success": true, "payload": float64(12), "code": float64(0)}, doc["outcome"])
}

// TestHarness_Instances verifies that identical calls get increasing
// instance indices and are replayed in the same order.
func TestHarness_Instances(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	live := &liveTransport{answer: func(n int32, _ string, _ []any) (one.Envelope, error) {
		return one.Envelope{Success: true, Payload: int64(n)}, nil
	}}
	recorder, err := fixture.New(live, dir)
	require.NoError(t, err)
	require.NoError(t, recorder.SetUnitTest("TestCounter"))
	client := newClient(t, recorder)

	// Act: record three identical calls
	for i := 1; i <= 3; i++ {
		n, err := client.CallInt(context.Background(), "vm.allocate", "NAME = \"a\"\n")
		require.NoError(t, err)
		require.Equal(t, i, n)
	}

	// Assert
	params := []any{session, "NAME = \"a\"\n"}
	for i := 0; i < 3; i++ {
		assert.FileExists(t, fixturePath(t, dir, "TestCounter", "one.vm.allocate", params, i))
	}

	// Act: replay
	replayer, err := fixture.New(nil, dir, fixture.WithMode(fixture.Replay))
	require.NoError(t, err)
	require.NoError(t, replayer.SetUnitTest("TestCounter"))
	client = newClient(t, replayer)

	// Assert: same order, then nothing left
	for i := 1; i <= 3; i++ {
		n, err := client.CallInt(context.Background(), "vm.allocate", "NAME = \"a\"\n")
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}
	_, err = client.CallInt(context.Background(), "vm.allocate", "NAME = \"a\"\n")
	assert.True(t, errors.Is(err, one.ErrFixtureMissing))
}

// TestHarness_SetUnitTest verifies that changing the unit test restarts the
// instance counters and scopes files to a new directory.
func TestHarness_SetUnitTest(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	live := &liveTransport{answer: func(int32, string, []any) (one.Envelope, error) {
		return one.Envelope{Success: true, Payload: true}, nil
	}}
	h, err := fixture.New(live, dir)
	require.NoError(t, err)
	params := []any{session, 0}

	// Act
	assert.Equal(t, "init", h.UnitTest())
	_, err = h.Invoke(context.Background(), "one.host.enable", params)
	require.NoError(t, err)
	_, err = h.Invoke(context.Background(), "one.host.enable", params)
	require.NoError(t, err)
	require.NoError(t, h.SetUnitTest("TestOther"))
	_, err = h.Invoke(context.Background(), "one.host.enable", params)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, "TestOther", h.UnitTest())
	assert.FileExists(t, fixturePath(t, dir, "init", "one.host.enable", params, 0))
	assert.FileExists(t, fixturePath(t, dir, "init", "one.host.enable", params, 1))
	assert.FileExists(t, fixturePath(t, dir, "TestOther", "one.host.enable", params, 0))
	assert.NoFileExists(t, fixturePath(t, dir, "TestOther", "one.host.enable", params, 1))
	assert.Error(t, h.SetUnitTest(""))
}

// TestHarness_APIFailure verifies that a failed envelope is recorded as an
// outcome and interpreted again on replay.
func TestHarness_APIFailure(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	msg := "[one.host.info] Error getting host [42]."
	live := &liveTransport{answer: func(int32, string, []any) (one.Envelope, error) {
		return one.Envelope{Success: false, Payload: msg, Code: one.CodeNotFound}, nil
	}}
	recorder, err := fixture.New(live, dir)
	require.NoError(t, err)
	_, recordErr := newClient(t, recorder).Call(context.Background(), "host.info", 42)
	require.True(t, errors.Is(recordErr, one.ErrNotFound))

	// Act
	replayer, err := fixture.New(nil, dir, fixture.WithReplay(true))
	require.NoError(t, err)
	_, err = newClient(t, replayer).Call(context.Background(), "host.info", 42)

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, one.ErrNotFound))
	assert.Equal(t, recordErr.Error(), err.Error())
}

// TestHarness_Fault verifies that a fault raised while recording is
// returned unchanged and raised again on replay.
func TestHarness_Fault(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	fault := &one.Fault{Code: -32601, Message: "requested method not found"}
	live := &liveTransport{answer: func(int32, string, []any) (one.Envelope, error) {
		return one.Envelope{}, fault
	}}
	recorder, err := fixture.New(live, dir)
	require.NoError(t, err)
	params := []any{session}

	// Act: record
	_, recordErr := recorder.Invoke(context.Background(), "one.invalid.api.call", params)

	// Assert: the original error is returned
	assert.Same(t, fault, recordErr)

	// Act: replay
	replayer, err := fixture.New(nil, dir, fixture.WithReplay(true))
	require.NoError(t, err)
	_, replayErr := replayer.Invoke(context.Background(), "one.invalid.api.call", params)

	// Assert
	var replayedFault *one.Fault
	require.True(t, errors.As(replayErr, &replayedFault), "got %v", replayErr)
	assert.Equal(t, fault.Code, replayedFault.Code)
	assert.Equal(t, fault.Message, replayedFault.Message)

	var replayed *fixture.ReplayedError
	assert.True(t, errors.As(replayErr, &replayed))

	// Through a client the fault is a generic error
	_, err = newClient(t, replayer).Call(context.Background(), "invalid.api.call")
	assert.True(t, errors.Is(err, one.ErrFixtureMissing), "second instance was never recorded")
	require.NoError(t, replayer.SetUnitTest("init"))
	_, err = newClient(t, replayer).Call(context.Background(), "invalid.api.call")
	assert.True(t, errors.Is(err, one.ErrGeneric))
}

// TestHarness_TransportError verifies that a transport error keeps its
// message and stack trace across replay.
func TestHarness_TransportError(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	live := &liveTransport{answer: func(int32, string, []any) (one.Envelope, error) {
		return one.Envelope{}, pkgerrors.New("dial tcp 10.0.0.1:2633: connection refused")
	}}
	recorder, err := fixture.New(live, dir)
	require.NoError(t, err)
	params := []any{session, -2, -1, -1, -1}
	_, _ = recorder.Invoke(context.Background(), "one.vmpool.info", params)

	// Act
	replayer, err := fixture.New(nil, dir, fixture.WithReplay(true))
	require.NoError(t, err)
	_, err = replayer.Invoke(context.Background(), "one.vmpool.info", params)

	// Assert
	require.Error(t, err)
	assert.Equal(t, "dial tcp 10.0.0.1:2633: connection refused", err.Error())

	var replayed *fixture.ReplayedError
	require.True(t, errors.As(err, &replayed))
	assert.NotEmpty(t, replayed.Traceback)
	assert.Contains(t, fmt.Sprintf("%+v", err), "harness_test")
}

// TestHarness_ContextError verifies that a transport error caused by the
// call context still matches the context error after replay.
func TestHarness_ContextError(t *testing.T) {
	tests := []struct {
		name  string
		cause error
	}{
		{name: "deadline exceeded", cause: context.DeadlineExceeded},
		{name: "canceled", cause: context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			dir := t.TempDir()
			live := &liveTransport{answer: func(int32, string, []any) (one.Envelope, error) {
				return one.Envelope{}, fmt.Errorf("Post %q: %w", "https://frontend:2633/RPC2", tt.cause)
			}}
			recorder, err := fixture.New(live, dir)
			require.NoError(t, err)
			params := []any{session, 7}
			_, recordErr := recorder.Invoke(context.Background(), "one.host.info", params)
			require.True(t, errors.Is(recordErr, tt.cause))

			// Act
			replayer, err := fixture.New(nil, dir, fixture.WithReplay(true))
			require.NoError(t, err)
			_, err = replayer.Invoke(context.Background(), "one.host.info", params)

			// Assert
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.cause))
			assert.Equal(t, recordErr.Error(), err.Error())
		})
	}
}

// TestHarness_PayloadTypes verifies that replayed payloads keep the Go type
// they were recorded with.
func TestHarness_PayloadTypes(t *testing.T) {
	tests := []struct {
		name    string
		payload any
	}{
		{name: "integral double", payload: float64(2)},
		{name: "fractional double", payload: 0.25},
		{name: "int", payload: int64(2)},
		{name: "string", payload: "2"},
		{name: "bool", payload: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			dir := t.TempDir()
			live := &liveTransport{answer: func(int32, string, []any) (one.Envelope, error) {
				return one.Envelope{Success: true, Payload: tt.payload}, nil
			}}
			recorder, err := fixture.New(live, dir)
			require.NoError(t, err)
			params := []any{session, 0}
			recorded, err := recorder.Invoke(context.Background(), "one.host.monitoring", params)
			require.NoError(t, err)

			// Act
			replayer, err := fixture.New(nil, dir, fixture.WithReplay(true))
			require.NoError(t, err)
			replayed, err := replayer.Invoke(context.Background(), "one.host.monitoring", params)

			// Assert
			require.NoError(t, err)
			assert.IsType(t, recorded.Payload, replayed.Payload)
			assert.Equal(t, recorded, replayed)
		})
	}
}

// TestHarness_ClientErrorKind verifies that client errors raised below the
// harness are replayed with their kind.
func TestHarness_ClientErrorKind(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	live := &liveTransport{answer: func(int32, string, []any) (one.Envelope, error) {
		return one.Envelope{}, &one.Error{Kind: one.KindAuthentication, Code: one.CodeAuthentication, Message: "bad token"}
	}}
	recorder, err := fixture.New(live, dir)
	require.NoError(t, err)
	_, _ = recorder.Invoke(context.Background(), "one.user.info", []any{session, -1})

	// Act
	replayer, err := fixture.New(nil, dir, fixture.WithReplay(true))
	require.NoError(t, err)
	_, err = replayer.Invoke(context.Background(), "one.user.info", []any{session, -1})

	// Assert
	assert.True(t, errors.Is(err, one.ErrAuthentication))
}

// TestHarness_MissingFixture verifies the error raised when a call was never
// recorded.
func TestHarness_MissingFixture(t *testing.T) {
	// Arrange
	h, err := fixture.New(nil, t.TempDir(), fixture.WithReplay(true))
	require.NoError(t, err)

	// Act
	_, err = h.Invoke(context.Background(), "one.host.info", []any{session, 99})

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, one.ErrFixtureMissing))
	assert.Contains(t, err.Error(), "re-record fixtures")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

// TestHarness_CorruptFixture verifies that an unreadable fixture is a
// generic error.
func TestHarness_CorruptFixture(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	params := []any{session, 1}
	path := fixturePath(t, dir, "init", "one.host.info", params, 0)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	h, err := fixture.New(nil, dir, fixture.WithReplay(true))
	require.NoError(t, err)

	// Act
	_, err = h.Invoke(context.Background(), "one.host.info", params)

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, one.ErrGeneric))
}

// TestHarness_ReplayNeverCallsLive verifies that replay mode ignores the
// live transport.
func TestHarness_ReplayNeverCallsLive(t *testing.T) {
	live := &liveTransport{answer: func(int32, string, []any) (one.Envelope, error) {
		return one.Envelope{Success: true, Payload: true}, nil
	}}
	h, err := fixture.New(live, t.TempDir(), fixture.WithReplay(true))
	require.NoError(t, err)

	_, err = h.Invoke(context.Background(), "one.host.enable", []any{session, 0})

	assert.True(t, errors.Is(err, one.ErrFixtureMissing))
	assert.Equal(t, int32(0), live.calls.Load())
}

// TestNew_RecordNeedsTransport verifies that record mode requires a live
// transport.
func TestNew_RecordNeedsTransport(t *testing.T) {
	h, err := fixture.New(nil, t.TempDir())

	assert.Error(t, err)
	assert.Nil(t, h)
}

// TestModeFromEnv tests mode selection from the environment.
func TestModeFromEnv(t *testing.T) {
	tests := []struct {
		value string
		want  fixture.Mode
	}{
		{value: "", want: fixture.Record},
		{value: "0", want: fixture.Record},
		{value: "false", want: fixture.Record},
		{value: "maybe", want: fixture.Record},
		{value: "1", want: fixture.Replay},
		{value: "true", want: fixture.Replay},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv(fixture.EnvReplay, tt.value)
			assert.Equal(t, tt.want, fixture.ModeFromEnv())
		})
	}
	assert.Equal(t, "replay", fixture.Replay.String())
	assert.Equal(t, "record", fixture.Record.String())
}
