package models

import (
	"bytes"
	"io"
	"mime/multipart"
)

// UploadedFile is a single file submitted in one request. It lives for the
// duration of that request only.
type UploadedFile struct {
	Filename  string
	MediaType string // as declared by the client, not sniffed
	Size      int64

	open func() (io.ReadCloser, error)
}

// NewUploadedFile wraps an arbitrary content source.
func NewUploadedFile(name, mediaType string, size int64, open func() (io.ReadCloser, error)) *UploadedFile {
	return &UploadedFile{
		Filename:  name,
		MediaType: mediaType,
		Size:      size,
		open:      open,
	}
}

// FromFileHeader adapts a parsed multipart file part.
func FromFileHeader(fh *multipart.FileHeader) *UploadedFile {
	return NewUploadedFile(fh.Filename, fh.Header.Get("Content-Type"), fh.Size, func() (io.ReadCloser, error) {
		return fh.Open()
	})
}

// FromBytes builds an UploadedFile backed by an in-memory buffer.
func FromBytes(name, mediaType string, data []byte) *UploadedFile {
	return NewUploadedFile(name, mediaType, int64(len(data)), func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	})
}

// Open returns a reader over the file content. The caller closes it.
func (f *UploadedFile) Open() (io.ReadCloser, error) {
	return f.open()
}

// Preview is what the upload handler renders for client-side playback.
type Preview struct {
	Filename  string
	MediaType string
	Size      int64
	DataURI   string
}
