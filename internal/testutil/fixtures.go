package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
)

func spectrogramImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for x := 0; x < 16; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 32), B: 128, A: 255})
		}
	}
	return img
}

// PNG returns a small valid PNG image.
func PNG() []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, spectrogramImage()); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// JPEG returns a small valid JPEG image.
func JPEG() []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, spectrogramImage(), nil); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// FilePart describes one file in a multipart request.
type FilePart struct {
	Field       string
	Filename    string
	ContentType string
	Data        []byte
}

// NewMultipartRequest builds a POST request whose body carries the given
// file parts, each with its own declared Content-Type.
func NewMultipartRequest(target string, parts ...FilePart) *http.Request {
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)

	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+p.Field+`"; filename="`+p.Filename+`"`)
		if p.ContentType != "" {
			h.Set("Content-Type", p.ContentType)
		}
		part, err := writer.CreatePart(h)
		if err != nil {
			panic(err)
		}
		part.Write(p.Data)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}
