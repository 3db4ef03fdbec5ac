package judge

import (
	"encoding/base64"
	"errors"
	"strings"
)

const dataURLPrefix = "data:"

// imageURL returns canvas data in the data-URL form the vision API accepts.
// Clients send either a full data URL or bare base64 PNG.
func imageURL(canvas string) (string, error) {
	canvas = strings.TrimSpace(canvas)
	if canvas == "" {
		return "", errors.New("no image data")
	}
	if strings.HasPrefix(canvas, dataURLPrefix) {
		parts := strings.SplitN(canvas, ",", 2)
		if len(parts) != 2 || parts[1] == "" {
			return "", errors.New("malformed data url")
		}
		return canvas, nil
	}
	if _, err := base64.StdEncoding.DecodeString(canvas); err != nil {
		return "", err
	}
	return "data:image/png;base64," + canvas, nil
}
