// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ingest accepts files the user attaches to a message and
// folds them into prompt text. Text files contribute a truncated
// preview of their content; anything else contributes only a
// description, because binary bytes in a prompt help nobody.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// =============================================================================
// LIMITS
// =============================================================================

const (
	// MaxFileSize is the hard ceiling on attachment size.
	MaxFileSize = 10 << 20 // 10 MiB

	// PreviewRuneLimit caps how much file content enters the prompt.
	// Truncation happens here, at fold time, so nothing beyond the
	// preview is ever transmitted upstream.
	PreviewRuneLimit = 500

	truncationMark = "...(content truncated)"
)

// ErrTooLarge rejects attachments over MaxFileSize.
var ErrTooLarge = errors.New("file exceeds the attachment size limit")

// textExtensions are the file types whose content is decoded and
// quoted. Everything else is described, not read.
var textExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".csv":  true,
	".json": true,
	".html": true,
	".js":   true,
	".py":   true,
	".css":  true,
}

// IsText reports whether a file name carries a recognized text
// extension.
func IsText(name string) bool {
	return textExtensions[strings.ToLower(filepath.Ext(name))]
}

// =============================================================================
// FILE
// =============================================================================

// File is one ingested attachment. Content is empty for non-text
// files.
type File struct {
	Name       string
	StoredName string
	Size       int64
	Content    string
}

// Read ingests a file from disk.
func Read(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return FromReader(filepath.Base(path), info.Size(), f)
}

// FromReader ingests an attachment from a stream, for callers that
// receive uploads rather than paths. size is the declared length and
// is enforced against both the declaration and the actual bytes.
func FromReader(name string, size int64, r io.Reader) (*File, error) {
	if size > MaxFileSize {
		return nil, ErrTooLarge
	}

	file := &File{
		Name:       name,
		StoredName: uuid.NewString() + "-" + filepath.Base(name),
		Size:       size,
	}
	if !IsText(name) {
		return file, nil
	}

	// One extra byte catches declared sizes that undershoot reality.
	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > MaxFileSize {
		return nil, ErrTooLarge
	}
	file.Size = int64(len(data))
	file.Content = string(data)
	return file, nil
}

// =============================================================================
// PROMPT FOLDING
// =============================================================================

// PromptBlock renders the attachment as prompt text: a fenced quote of
// the (truncated) content for text files, a one-line description for
// everything else.
func (f *File) PromptBlock() string {
	if f.Content == "" {
		return fmt.Sprintf("[Attached file: %s (%s, %s)]",
			f.Name, describeType(f.Name), humanize.IBytes(uint64(f.Size)))
	}

	preview := f.Content
	if runes := []rune(preview); len(runes) > PreviewRuneLimit {
		preview = string(runes[:PreviewRuneLimit]) + truncationMark
	}
	return fmt.Sprintf("[Attached file: %s]\n```\n%s\n```", f.Name, preview)
}

func describeType(name string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "" {
		return "unknown type"
	}
	return ext
}
