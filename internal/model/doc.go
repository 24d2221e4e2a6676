// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model defines the core domain types shared across quill:
// conversations, messages, and the roles messages are attributed to.
//
// Types here carry no behavior beyond derivation helpers. Persistence
// lives in internal/storage, lifecycle rules in internal/engine.
package model
