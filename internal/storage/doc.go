// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists conversations and messages in SQLite.
//
// The store is the single writer of message ordering keys: every
// message gets a created_at assigned from a process-local monotonic
// clock, so transcript order is total even when wall time repeats.
package storage
