// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"

	"github.com/jeranaias/quill-tui/internal/engine"
	"github.com/jeranaias/quill-tui/internal/ingest"
	"github.com/jeranaias/quill-tui/internal/relay"
	"github.com/jeranaias/quill-tui/internal/storage"
)

// friendlyError converts layer errors into one-line banner text. The
// original errors are the engine's business; the banner only needs to
// tell the user what to do next.
func friendlyError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, engine.ErrBusy):
		return "Still waiting for the last reply. Hold on."
	case engine.IsValidation(err):
		return err.Error()
	case relay.IsTimeout(err):
		return "The assistant took too long to answer. Try again."
	case relay.IsTransport(err):
		return "Could not reach the assistant service. Check your connection."
	case relay.IsMalformed(err):
		return "The assistant service sent an unusable response. Try again."
	case relay.IsUpstream(err):
		var re *relay.RelayError
		errors.As(err, &re)
		return fmt.Sprintf("The assistant service returned an error (status %d).", re.StatusCode)
	case errors.Is(err, ingest.ErrTooLarge):
		return "That file is too large to attach (10 MiB limit)."
	case storage.IsNotFound(err):
		return "That conversation is gone. Pick another one."
	default:
		var se *storage.StoreError
		if errors.As(err, &se) {
			return "Saving failed. Your last message may not be stored."
		}
		return err.Error()
	}
}
