package share

import (
	"context"
	"fmt"

	"github.com/atotto/clipboard"
)

// Link returns the public address of task id under baseURL.
func Link(baseURL, id string) string {
	return baseURL + "/task/" + id
}

// Clipboard receives text to copy.
type Clipboard interface {
	WriteText(ctx context.Context, text string) error
}

// ClipboardFunc adapts a function to the Clipboard interface.
type ClipboardFunc func(ctx context.Context, text string) error

func (f ClipboardFunc) WriteText(ctx context.Context, text string) error {
	return f(ctx, text)
}

// SystemClipboard writes to the clipboard of the local desktop session.
type SystemClipboard struct{}

func (SystemClipboard) WriteText(_ context.Context, text string) error {
	if clipboard.Unsupported {
		return fmt.Errorf("clipboard unsupported on this system")
	}
	return clipboard.WriteAll(text)
}

// Sharer builds share links and hands them to a clipboard.
type Sharer struct {
	BaseURL   string
	Clipboard Clipboard
}

// Share copies the link of task id to the clipboard and returns it. The link
// is returned even when copying fails.
func (s *Sharer) Share(ctx context.Context, id string) (string, error) {
	link := Link(s.BaseURL, id)
	if s.Clipboard == nil {
		return link, nil
	}
	if err := s.Clipboard.WriteText(ctx, link); err != nil {
		return link, fmt.Errorf("copy share link: %w", err)
	}
	return link, nil
}
