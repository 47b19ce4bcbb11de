package ingestion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/poiesic/scribe/core"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
)

// MetaSource is the metadata key carrying the source reference.
const MetaSource = "source"

// Loader reads a document into one or more langchaingo documents.
type Loader interface {
	Load(ctx context.Context, ref string) ([]schema.Document, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, ref string) ([]schema.Document, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, ref string) ([]schema.Document, error) {
	return f(ctx, ref)
}

// Registry maps file extensions to loaders.
type Registry struct {
	mu      sync.RWMutex
	loaders map[string]Loader
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{loaders: make(map[string]Loader)}
}

// DefaultRegistry returns a registry with loaders for .txt, .md, .pdf,
// .docx, .json, .html, .htm and .csv documents.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(".txt", TextLoader())
	r.Register(".md", TextLoader())
	r.Register(".pdf", PDFLoader())
	r.Register(".docx", DocxLoader())
	r.Register(".json", JSONLoader())
	r.Register(".html", HTMLLoader())
	r.Register(".htm", HTMLLoader())
	r.Register(".csv", CSVLoader())
	return r
}

// Register associates ext (with or without a leading dot) with l.
func (r *Registry) Register(ext string, l Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[normalizeExt(ext)] = l
}

// Supported returns the registered extensions, sorted.
func (r *Registry) Supported() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.loaders))
	for ext := range r.loaders {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

// Resolve returns the loader for ref. Files without an extension are
// identified by content sniffing. Unknown types wrap
// core.ErrUnsupportedDocument.
func (r *Registry) Resolve(ref string) (Loader, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ext := normalizeExt(filepath.Ext(ref))
	if ext != "" {
		if l, ok := r.loaders[ext]; ok {
			return l, nil
		}
	} else if mime, err := mimetype.DetectFile(ref); err == nil {
		for m := mime; m != nil; m = m.Parent() {
			if l, ok := r.loaders[m.Extension()]; ok {
				return l, nil
			}
		}
		ext = mime.String()
	}

	supported := make([]string, 0, len(r.loaders))
	for e := range r.loaders {
		supported = append(supported, e)
	}
	slices.Sort(supported)
	return nil, fmt.Errorf("%w: %q is not one of %s",
		core.ErrUnsupportedDocument, ext, strings.Join(supported, ", "))
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// TextLoader loads plain text and markdown files as a single document.
func TextLoader() Loader {
	return readerLoader(func(f *os.File, _ int64) documentloaders.Loader {
		return documentloaders.NewText(f)
	})
}

// PDFLoader loads a PDF with one document per page.
func PDFLoader() Loader {
	return readerLoader(func(f *os.File, size int64) documentloaders.Loader {
		return documentloaders.NewPDF(f, size)
	})
}

// HTMLLoader loads sanitized HTML text.
func HTMLLoader() Loader {
	return readerLoader(func(f *os.File, _ int64) documentloaders.Loader {
		return documentloaders.NewHTML(f)
	})
}

// CSVLoader loads one document per CSV row.
func CSVLoader() Loader {
	return readerLoader(func(f *os.File, _ int64) documentloaders.Loader {
		return documentloaders.NewCSV(f)
	})
}

// readerLoader opens ref and hands it to a langchaingo loader.
func readerLoader(build func(f *os.File, size int64) documentloaders.Loader) Loader {
	return LoaderFunc(func(ctx context.Context, ref string) ([]schema.Document, error) {
		f, err := os.Open(ref)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, err
		}
		docs, err := build(f, info.Size()).Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", ref, err)
		}
		return withSource(docs, ref), nil
	})
}

// withSource stamps every document with the source reference.
func withSource(docs []schema.Document, ref string) []schema.Document {
	for i := range docs {
		if docs[i].Metadata == nil {
			docs[i].Metadata = make(map[string]any)
		}
		docs[i].Metadata[MetaSource] = ref
	}
	return docs
}
