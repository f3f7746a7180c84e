//go:build native

package main

import _ "github.com/gogpu/rhi/backend/native"
