package upstream

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"strings"

	_ "golang.org/x/image/bmp"  // register decoder
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register decoder

	gnomecache "github.com/wolfeidau/gnome-cache"
	"github.com/wolfeidau/gnome-cache/telemetry"
)

// UpgradeInsecure rewrites an http:// URL to https://. Other URLs are
// returned unchanged.
func UpgradeInsecure(url string) string {
	if rest, ok := strings.CutPrefix(url, "http://"); ok {
		return "https://" + rest
	}
	return url
}

// FetchImage downloads the photo at url, decodes it and scales it to the
// configured size.
func (c *Client) FetchImage(ctx context.Context, url string) (image.Image, error) {
	if url == "" {
		return nil, gnomecache.Errorf(gnomecache.ErrTransport, "empty photo url")
	}
	if c.upgradeInsecure {
		url = UpgradeInsecure(url)
	}

	ctx = telemetry.WithResourceContext(ctx, telemetry.ResourcePhoto)
	body, err := c.get(ctx, url, "image/*")
	if err != nil {
		return nil, fmt.Errorf("fetching photo: %w", err)
	}
	defer func() { _ = body.Close() }()

	src, format, err := image.Decode(body)
	if err != nil {
		return nil, gnomecache.Errorf(gnomecache.ErrParse, "decoding photo %s: %w", url, err)
	}

	c.logger.Debug("fetched photo",
		"url", url,
		"format", format,
		"width", src.Bounds().Dx(),
		"height", src.Bounds().Dy(),
	)
	return Resize(src, c.width, c.height), nil
}

// Resize scales src to exactly width by height using bilinear
// interpolation. The aspect ratio is not preserved.
func Resize(src image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}
