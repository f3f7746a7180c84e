// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package job runs CPU-side work off the render goroutine and confirms
// the GPU side on it.
//
// A Job passes two gates before it finishes. Poll reports that the
// background Run has returned. TryConfirm, called on the render goroutine,
// submits the task's GPU work once and then reports whether its fence has
// signaled. Poller.Process checks both every tick and calls Finish only
// when both pass, so completion callbacks never observe data the GPU is
// still reading.
//
// Cancelled and failed jobs skip the GPU submission and finish through the
// same path; their Result says why.
package job
