package config

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/nativebind/errors"
)

func TestDefaults(t *testing.T) {
	t.Setenv(EnvChecks, "")
	t.Setenv(EnvDebug, "")
	t.Setenv(EnvStackSize, "")
	t.Setenv(EnvStackFrames, "")

	c := New()
	assert.True(t, c.ArraySizeCheck.Get())
	assert.False(t, c.Debug.Get())
	assert.False(t, c.DebugStack.Get())
	assert.Equal(t, 64, c.StackSizeKiB.Get())
	assert.Equal(t, 8, c.StackFrames.Get())
}

func TestEnvOverrides(t *testing.T) {
	cases := map[string]struct {
		value  string
		expect bool
	}{
		"false":  {"false", false},
		"0":      {"0", false},
		"quoted": {"\"false\"", false},
		"true":   {"true", true},
		"1":      {"1", true},
		"other":  {"yes please", true},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(EnvChecks, tc.value)
			assert.Equal(t, tc.expect, New().ArraySizeCheck.Get())
		})
	}

	t.Run("stack size", func(t *testing.T) {
		t.Setenv(EnvStackSize, "128")
		t.Setenv(EnvStackFrames, "' 4 '")
		c := New()
		assert.Equal(t, 128, c.StackSizeKiB.Get())
		assert.Equal(t, 4, c.StackFrames.Get())
	})

	t.Run("invalid stack size falls back", func(t *testing.T) {
		t.Setenv(EnvStackSize, "lots")
		t.Setenv(EnvStackFrames, "-3")
		c := New()
		assert.Equal(t, 64, c.StackSizeKiB.Get())
		assert.Equal(t, 8, c.StackFrames.Get())
	})
}

func TestEntryMaterializesOnce(t *testing.T) {
	calls := 0
	e := NewEntry("n", func() int {
		calls++
		return 7
	})

	assert.False(t, e.Resolved())
	assert.Equal(t, 7, e.Get())
	assert.Equal(t, 7, e.Get())
	assert.Equal(t, 1, calls)
	assert.True(t, e.Resolved())

	e.Set(9)
	assert.Equal(t, 9, e.Get())
	assert.Equal(t, 1, calls)

}

func TestEntrySetBeforeGetSkipsSupplier(t *testing.T) {
	e := NewEntry("n", func() string {
		t.Fatal("supplier must not run")
		return ""
	})
	e.Set("explicit")
	assert.Equal(t, "explicit", e.Get())
}

func TestEnvReadOnce(t *testing.T) {
	t.Setenv(EnvChecks, "false")
	c := New()
	require.False(t, c.ArraySizeCheck.Get())

	t.Setenv(EnvChecks, "true")
	assert.False(t, c.ArraySizeCheck.Get(), "entries do not refresh from the environment")
}

func TestCheckArraySize(t *testing.T) {
	c := New()
	c.ArraySizeCheck.Set(true)

	require.NoError(t, c.CheckArraySize(4, 4))

	err := c.CheckArraySize(4, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "array size mismatch: expected 4, got 3")

	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.PhaseValidate, e.Phase)
	assert.Equal(t, errors.KindSizeMismatch, e.Kind)

	c.ArraySizeCheck.Set(false)
	assert.NoError(t, c.CheckArraySize(4, 3))
	assert.NoError(t, c.CheckArraySize(-1, 1<<40))
}

type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) Log(msg string) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func TestAPILog(t *testing.T) {
	c := New()
	rec := &recorder{}
	c.SetSink(rec)

	c.APILog("bound add")
	require.Len(t, rec.msgs, 1)
	assert.Equal(t, "[nativebind] bound add", rec.msgs[0])

	c.SetSink(nil)
	_, isZap := c.Sink().(zapSink)
	assert.True(t, isZap, "nil sink restores the default")

	c.APILog("to stderr")
	assert.Len(t, rec.msgs, 1)
}

func TestSetSinkTypedNil(t *testing.T) {
	var f SinkFunc
	var r *recorder
	sinks := map[string]Sink{
		"nil func":     f,
		"nil pointer":  r,
		"nil zap sink": ZapSink(nil),
	}
	for name, s := range sinks {
		t.Run(name, func(t *testing.T) {
			c := New()
			c.SetSink(s)
			assert.NotPanics(t, func() { c.APILog("typed nil") })
		})
	}
}

func TestDebugf(t *testing.T) {
	c := New()
	var got []string
	c.SetSink(SinkFunc(func(msg string) { got = append(got, msg) }))

	c.Debug.Set(false)
	c.Debugf("hidden %d", 1)
	assert.Empty(t, got)

	c.Debug.Set(true)
	c.Debugf("shown %d", 2)
	assert.Equal(t, []string{"[nativebind] shown 2"}, got)
}

func TestAsMap(t *testing.T) {
	t.Setenv(EnvStackFrames, "")
	c := New()
	m := c.AsMap()

	for _, name := range []string{"array-size-check", "debug", "debug-stack", "stack-size", "stack-frames", "sink"} {
		_, ok := m[name]
		assert.True(t, ok, "missing %s", name)
	}
	assert.Equal(t, EnvStackFrames, m["stack-frames"].Env)
	assert.Equal(t, 8, m["stack-frames"].Value)
	assert.NotEmpty(t, m["array-size-check"].Description)
}

func TestConcurrentAccess(t *testing.T) {
	c := New()
	rec := &recorder{}
	c.SetSink(rec)

	var g errgroup.Group
	for i := 0; i < 32; i++ {
		g.Go(func() error {
			if i%2 == 0 {
				c.ArraySizeCheck.Set(true)
			}
			c.APILog("msg")
			_ = c.CheckArraySize(1, 1)
			_ = c.StackSizeKiB.Get()
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 32, rec.len())
	assert.True(t, c.ArraySizeCheck.Get())
}
