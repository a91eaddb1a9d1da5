// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

// Package mocks provides testify mocks for the auth package interfaces.
//
// Each constructor registers a cleanup that asserts all expectations were
// met, so tests only declare the calls they expect.
package mocks
