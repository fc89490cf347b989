package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/nativebind/errors"
)

const (
	EnvChecks      = "NATIVEBIND_CHECKS"
	EnvDebug       = "NATIVEBIND_DEBUG"
	EnvDebugStack  = "NATIVEBIND_DEBUG_STACK"
	EnvStackSize   = "NATIVEBIND_STACK_SIZE"
	EnvStackFrames = "NATIVEBIND_STACK_FRAMES"
)

const (
	defaultStackSizeKiB = 64
	defaultStackFrames  = 8
)

// Config holds the settings consulted by the binding engine. Create one per
// process or per loaded library with New and pass it explicitly; there is
// no global instance.
type Config struct {
	// ArraySizeCheck enables fixed-size array argument validation.
	ArraySizeCheck *Entry[bool]
	// Debug enables diagnostic messages through the sink.
	Debug *Entry[bool]
	// DebugStack records the caller stack in diagnostic messages.
	DebugStack *Entry[bool]
	// StackSizeKiB is the default size of per-call scratch stacks.
	StackSizeKiB *Entry[int]
	// StackFrames is the number of caller frames recorded when DebugStack
	// is enabled.
	StackFrames *Entry[int]

	sink *Entry[Sink]
}

// New creates a configuration whose defaults are read from the environment
// the first time each setting is read.
func New() *Config {
	c := &Config{
		ArraySizeCheck: envBool("array-size-check", EnvChecks, true,
			"Validate fixed-size array arguments (default true)"),
		Debug: envBool("debug", EnvDebug, false,
			"Emit binding diagnostics (e.g. NATIVEBIND_DEBUG=1)"),
		DebugStack: envBool("debug-stack", EnvDebugStack, false,
			"Include caller stacks in diagnostics"),
		StackSizeKiB: envInt("stack-size", EnvStackSize, defaultStackSizeKiB,
			"Scratch stack size in KiB (default 64)"),
		StackFrames: envInt("stack-frames", EnvStackFrames, defaultStackFrames,
			"Caller frames in debug-stack diagnostics (default 8)"),
	}
	c.sink = NewEntry("sink", DefaultSink)
	c.sink.desc = "Diagnostic message sink (default stderr)"
	return c
}

// CheckArraySize fails with a validation error when array size checking is
// enabled and expected differs from got. It is a no-op when checking is
// disabled.
func (c *Config) CheckArraySize(expected, got int64) error {
	if !c.ArraySizeCheck.Get() {
		return nil
	}
	if expected != got {
		return errors.ArraySize(expected, got)
	}
	return nil
}

// APILog forwards a message to the configured sink.
func (c *Config) APILog(msg string) {
	c.sink.Get().Log("[nativebind] " + msg)
}

// Debugf logs through the sink when debug diagnostics are enabled.
func (c *Config) Debugf(format string, args ...any) {
	if !c.Debug.Get() {
		return
	}
	c.APILog(fmt.Sprintf(format, args...))
}

// Sink returns the configured sink.
func (c *Config) Sink() Sink {
	return c.sink.Get()
}

// SetSink replaces the sink. A nil sink, including a typed nil such as a
// nil SinkFunc, restores the default standard error sink; logging cannot
// be disabled this way.
func (c *Config) SetSink(s Sink) {
	if isNilSink(s) {
		s = DefaultSink()
	}
	c.sink.Set(s)
}

func isNilSink(s Sink) bool {
	if s == nil {
		return true
	}
	v := reflect.ValueOf(s)
	switch v.Kind() {
	case reflect.Func, reflect.Pointer, reflect.Map, reflect.Chan, reflect.Slice, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// Setting describes one configuration value for display.
type Setting struct {
	Value       any
	Name        string
	Env         string
	Description string
}

// AsMap returns the current settings keyed by name.
func (c *Config) AsMap() map[string]Setting {
	return map[string]Setting{
		c.ArraySizeCheck.Name(): setting(c.ArraySizeCheck),
		c.Debug.Name():          setting(c.Debug),
		c.DebugStack.Name():     setting(c.DebugStack),
		c.StackSizeKiB.Name():   setting(c.StackSizeKiB),
		c.StackFrames.Name():    setting(c.StackFrames),
		c.sink.Name():           {Name: c.sink.Name(), Value: fmt.Sprintf("%T", c.sink.Get()), Description: c.sink.Description()},
	}
}

func setting[T any](e *Entry[T]) Setting {
	return Setting{Name: e.Name(), Env: e.Env(), Value: e.Get(), Description: e.Description()}
}

// Clean quotes and spaces from the value
func clean(key string) string {
	return strings.Trim(os.Getenv(key), "\"' ")
}

func envBool(name, env string, def bool, desc string) *Entry[bool] {
	e := NewEntry(name, func() bool {
		raw := clean(env)
		if raw == "" {
			return def
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			// any non-boolean value switches the setting on
			return true
		}
		return v
	})
	e.env, e.desc = env, desc
	return e
}

func envInt(name, env string, def int, desc string) *Entry[int] {
	e := NewEntry(name, func() int {
		raw := clean(env)
		if raw == "" {
			return def
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			StderrLogger().Warn("invalid setting must be a positive integer, using default",
				zap.String(env, raw), zap.Int("default", def), zap.Error(err))
			return def
		}
		return v
	})
	e.env, e.desc = env, desc
	return e
}
