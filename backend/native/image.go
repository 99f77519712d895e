package native

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/pngine/backend"
)

// imageBitmap is a decoded create_image_bitmap blob, held host-side
// until copy_external_image_to_texture uploads it.
type imageBitmap struct {
	mime string
	rgba *image.RGBA
}

// CreateImageBitmap decodes a [mime_len:u8][mime][bytes] blob. The mime
// type selects the decoder; the pixels are normalized to RGBA for
// upload.
func (b *Backend) CreateImageBitmap(id uint32, blob []byte) error {
	skip, err := checkSlot(id, MaxImageBitmaps, b.images[id%MaxImageBitmaps] != nil)
	if err != nil || skip {
		return err
	}
	if len(blob) < 1 {
		return fmt.Errorf("%w: empty image blob", backend.ErrMalformedDescriptor)
	}
	mimeLen := int(blob[0])
	if 1+mimeLen > len(blob) {
		return fmt.Errorf("%w: image mime truncated", backend.ErrMalformedDescriptor)
	}
	mime := string(blob[1 : 1+mimeLen])
	payload := blob[1+mimeLen:]

	img, err := decodeImage(mime, payload)
	if err != nil {
		return fmt.Errorf("image bitmap %d (%s): %w", id, mime, err)
	}

	rgba, ok := img.(*image.RGBA)
	if !ok {
		bounds := img.Bounds()
		rgba = image.NewRGBA(bounds)
		draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)
	}
	b.images[id] = &imageBitmap{mime: mime, rgba: rgba}
	b.log.Debug("image bitmap decoded", "id", id, "mime", mime,
		"width", rgba.Rect.Dx(), "height", rgba.Rect.Dy())
	return nil
}

func decodeImage(mime string, payload []byte) (image.Image, error) {
	r := bytes.NewReader(payload)
	switch mime {
	case "image/png":
		return png.Decode(r)
	case "image/jpeg":
		return jpeg.Decode(r)
	case "image/gif":
		return gif.Decode(r)
	case "image/bmp":
		return bmp.Decode(r)
	case "image/tiff":
		return tiff.Decode(r)
	case "image/webp":
		return webp.Decode(r)
	default:
		// Fall back to sniffing; covers blobs with a missing or exotic
		// mime string that stdlib registration still recognizes.
		img, _, err := image.Decode(r)
		return img, err
	}
}

// CopyExternalImageToTexture uploads a decoded bitmap into a texture
// via the queue.
func (b *Backend) CopyExternalImageToTexture(imageID, textureID uint32) error {
	if int(imageID) >= MaxImageBitmaps || b.images[imageID] == nil {
		return fmt.Errorf("%w: image bitmap %d", backend.ErrResourceNotFound, imageID)
	}
	if int(textureID) >= MaxTextures || b.textures[textureID].tex == nil {
		return fmt.Errorf("%w: texture %d", backend.ErrResourceNotFound, textureID)
	}
	rgba := b.images[imageID].rgba
	w := uint32(rgba.Rect.Dx())
	h := uint32(rgba.Rect.Dy())

	b.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  b.textures[textureID].tex,
			MipLevel: 0,
		},
		rgba.Pix,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(rgba.Stride),
			RowsPerImage: h,
		},
		&hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	)
	return nil
}
