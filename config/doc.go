// Package config holds the settings that control binding validation and
// diagnostics.
//
// Settings are typed entries with a default supplier. A default is read
// from the environment the first time its entry is read and is cached from
// then on; Set overrides it explicitly. Entries never refresh on their own.
//
//	NATIVEBIND_CHECKS        array size checking (default true)
//	NATIVEBIND_DEBUG         binding diagnostics (default false)
//	NATIVEBIND_DEBUG_STACK   caller stacks in diagnostics (default false)
//	NATIVEBIND_STACK_SIZE    scratch stack size in KiB (default 64)
//	NATIVEBIND_STACK_FRAMES  scratch stack frame count (default 8)
//
// A Config is created with New and passed to the consumers that need it.
// Establish settings before concurrent use begins if their values must be
// deterministic; concurrent writes are last-writer-wins.
package config
