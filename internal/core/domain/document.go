package domain

import (
	"path/filepath"
	"strings"
)

type ContentType string

const (
	ContentTypePDF   ContentType = "pdf"
	ContentTypeDOCX  ContentType = "docx"
	ContentTypeXLSX  ContentType = "xlsx"
	ContentTypeImage ContentType = "image"
)

var extensionContentTypes = map[string]ContentType{
	".pdf":  ContentTypePDF,
	".docx": ContentTypeDOCX,
	".xlsx": ContentTypeXLSX,
	".png":  ContentTypeImage,
	".jpg":  ContentTypeImage,
	".jpeg": ContentTypeImage,
	".bmp":  ContentTypeImage,
	".tif":  ContentTypeImage,
	".tiff": ContentTypeImage,
	".webp": ContentTypeImage,
}

// DetectContentType maps a file extension to a supported content type.
func DetectContentType(path string) (ContentType, bool) {
	ct, ok := extensionContentTypes[strings.ToLower(filepath.Ext(path))]
	return ct, ok
}

// Document is the extracted text of one source file. It is not mutated after extraction.
type Document struct {
	Source      string      `json:"source"`
	ContentType ContentType `json:"content_type"`
	Text        string      `json:"text"`
}

// Chunk is a bounded fragment of a document that keeps its provenance.
type Chunk struct {
	ID          string      `json:"id"`
	Source      string      `json:"source"`
	ContentType ContentType `json:"content_type"`
	Index       int         `json:"index"`
	Text        string      `json:"text"`
}

// UploadedFile is a file persisted by the upload operation.
type UploadedFile struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
}
