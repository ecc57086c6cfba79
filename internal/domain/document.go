package domain

import (
	"path"
	"sort"
	"strings"
)

// DocumentType tags how a document's text is extracted.
type DocumentType string

const (
	DocumentTypeText     DocumentType = "text"
	DocumentTypeMarkdown DocumentType = "markdown"
	DocumentTypeXML      DocumentType = "xml"
	DocumentTypeDOCX     DocumentType = "docx"
	DocumentTypePDF      DocumentType = "pdf"
	DocumentTypeImage    DocumentType = "image"
)

var extensionTypes = map[string]DocumentType{
	".txt":  DocumentTypeText,
	".md":   DocumentTypeMarkdown,
	".xml":  DocumentTypeXML,
	".docx": DocumentTypeDOCX,
	".pdf":  DocumentTypePDF,
	".png":  DocumentTypeImage,
	".jpg":  DocumentTypeImage,
	".jpeg": DocumentTypeImage,
}

// IsValid checks if the DocumentType is one of the known tags
func (t DocumentType) IsValid() bool {
	switch t {
	case DocumentTypeText, DocumentTypeMarkdown, DocumentTypeXML,
		DocumentTypeDOCX, DocumentTypePDF, DocumentTypeImage:
		return true
	}
	return false
}

// DocumentTypeForPath resolves a document type from a file name's extension.
func DocumentTypeForPath(name string) (DocumentType, bool) {
	t, ok := extensionTypes[strings.ToLower(path.Ext(name))]
	return t, ok
}

// SupportedExtensions lists the file extensions that have a document type, sorted.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(extensionTypes))
	for ext := range extensionTypes {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Document is one source file and its extracted text. It only lives for one ingestion pass.
type Document struct {
	ID   string
	Type DocumentType
	Text string
}
