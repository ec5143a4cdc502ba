package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	relayclient "relay/internal/client"
)

// imageList collects --image flags, reading and encoding each file as
// it is parsed so bad paths fail before any request is sent.
type imageList struct {
	attachments []relayclient.ImageAttachment
}

func (l *imageList) String() string {
	return fmt.Sprintf("%d image(s)", len(l.attachments))
}

func (l *imageList) Set(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	mediaType, err := imageMediaType(path)
	if err != nil {
		return err
	}
	l.attachments = append(l.attachments, relayclient.ImageAttachment{
		MediaType: mediaType,
		Data:      base64.StdEncoding.EncodeToString(data),
	})
	return nil
}

func imageMediaType(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png", nil
	case ".jpg", ".jpeg":
		return "image/jpeg", nil
	case ".gif":
		return "image/gif", nil
	case ".webp":
		return "image/webp", nil
	default:
		return "", fmt.Errorf("unsupported image type: %s", path)
	}
}
