package ingestion

import (
	"archive/zip"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/tmc/langchaingo/schema"
)

// JSONLoader loads every string value of a JSON document, in key order,
// one per line.
func JSONLoader() Loader {
	return LoaderFunc(func(ctx context.Context, ref string) ([]schema.Document, error) {
		f, err := os.Open(ref)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		var value any
		dec := json.NewDecoder(f)
		dec.UseNumber()
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("loading %s: %w", ref, err)
		}

		var lines []string
		collectStrings(value, &lines)
		doc := schema.Document{PageContent: strings.Join(lines, "\n")}
		return withSource([]schema.Document{doc}, ref), nil
	})
}

func collectStrings(value any, out *[]string) {
	switch v := value.(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			*out = append(*out, s)
		}
	case []any:
		for _, item := range v {
			collectStrings(item, out)
		}
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			collectStrings(v[k], out)
		}
	}
}

// DocxLoader loads the body text of a Word document, one paragraph per line.
func DocxLoader() Loader {
	return LoaderFunc(func(ctx context.Context, ref string) ([]schema.Document, error) {
		zr, err := zip.OpenReader(ref)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", ref, err)
		}
		defer zr.Close()

		for _, file := range zr.File {
			if file.Name != "word/document.xml" {
				continue
			}
			rc, err := file.Open()
			if err != nil {
				return nil, err
			}
			text, err := docxText(rc)
			rc.Close()
			if err != nil {
				return nil, fmt.Errorf("loading %s: %w", ref, err)
			}
			return withSource([]schema.Document{{PageContent: text}}, ref), nil
		}
		return nil, fmt.Errorf("loading %s: missing word/document.xml", ref)
	})
}

// docxText extracts run text from WordprocessingML.
func docxText(r io.Reader) (string, error) {
	var sb strings.Builder
	dec := xml.NewDecoder(r)
	inText := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return strings.TrimSpace(sb.String()), nil
}
