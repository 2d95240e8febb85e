package plugin

import "fmt"

// NotFoundError is returned when a lifecycle operation references a plugin
// name absent from the registry.
type NotFoundError struct {
	Plugin string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("plugin %q not found", e.Plugin)
}

// LoadError is returned when a plugin's OnLoad hook fails. The instance is
// not registered.
type LoadError struct {
	Plugin string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load plugin %q: %v", e.Plugin, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// LifecycleError is returned when an OnEnable, OnDisable or OnUnload hook
// fails. It names the plugin and the failing hook; the instance's state is
// forced to StateError.
type LifecycleError struct {
	Plugin string
	Hook   string
	Err    error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("plugin %q %s: %v", e.Plugin, e.Hook, e.Err)
}

func (e *LifecycleError) Unwrap() error { return e.Err }

// DescriptorError is returned by discovery when a plugin package's descriptor
// is present but malformed.
type DescriptorError struct {
	Dir string
	Err error
}

func (e *DescriptorError) Error() string {
	return fmt.Sprintf("invalid descriptor in %s: %v", e.Dir, e.Err)
}

func (e *DescriptorError) Unwrap() error { return e.Err }

// ModuleError is returned by discovery when a plugin package's entry module
// cannot be resolved, or when the resolved plugin value contradicts the
// descriptor.
type ModuleError struct {
	Dir string
	Err error
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("plugin module in %s: %v", e.Dir, e.Err)
}

func (e *ModuleError) Unwrap() error { return e.Err }
