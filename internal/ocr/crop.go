package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"os"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// Crop returns the part of img inside region, clipped to the image bounds.
// Images that support SubImage share pixels with the original; others are
// copied. The original image is never modified.
func Crop(img image.Image, region image.Rectangle) (image.Image, error) {
	r := region.Intersect(img.Bounds())
	if r.Empty() {
		return nil, ErrEmptyRegion
	}
	if s, ok := img.(subImager); ok {
		return s.SubImage(r), nil
	}
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Bounds(), img, r.Min, draw.Src)
	return out, nil
}

// encodePNG crops region out of img and encodes it as PNG for backends
// that take raw bytes.
func encodePNG(img image.Image, region image.Rectangle) ([]byte, error) {
	crop, err := Crop(img, region)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, crop, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// JoinLines trims every line of text and joins the non-empty ones with a
// single space.
func JoinLines(text string) string {
	lines := strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' })
	parts := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " ")
}

// googleClientOptions returns credential options from the environment,
// GOOGLE_CREDENTIALS (inline JSON) first, then GOOGLE_APPLICATION_CREDENTIALS
// (a file path). Both are parsed up front so a broken key fails with
// ErrMissingCredentials instead of on the first request. An empty slice means
// Application Default Credentials.
func googleClientOptions(ctx context.Context) ([]option.ClientOption, error) {
	var (
		data   []byte
		source string
	)
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		data, source = []byte(credJSON), "GOOGLE_CREDENTIALS"
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		b, err := os.ReadFile(credFile)
		if err != nil {
			return nil, fmt.Errorf("%w: GOOGLE_APPLICATION_CREDENTIALS: %v", ErrMissingCredentials, err)
		}
		data, source = b, "GOOGLE_APPLICATION_CREDENTIALS"
	} else {
		return nil, nil
	}

	creds, err := google.CredentialsFromJSON(ctx, data, cloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingCredentials, source, err)
	}
	return []option.ClientOption{option.WithCredentials(creds)}, nil
}
