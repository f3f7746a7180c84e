// Package backend defines the driver boundary between engine-side object
// lifecycles and a concrete graphics device.
//
// # Driver Registration
//
// Drivers register a factory from init() and are opened by name:
//
//	import _ "github.com/gogpu/rhi/backend/null"   // headless, always usable
//	import _ "github.com/gogpu/rhi/backend/native" // WebGPU HAL on Vulkan
//
//	d, err := backend.Open("null")
//
// Default opens the best driver that is registered and can find a device.
//
// # Errors
//
// Driver state errors are sticky: an operation on an unknown handle is
// recorded and reported by the next ErrorCheck call. The engine calls
// ErrorCheck once per tick, and after every create and bind in debug mode.
package backend
