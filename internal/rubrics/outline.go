package rubrics

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"regexp"
	"strings"
)

const docxBody = "word/document.xml"

var outlineLine = regexp.MustCompile(`^\s*\d\D* .+`)

// parseOutline recovers criteria from outline lines of the form "<marker> <criterion>".
// The marker is the first space-separated token; a marker containing "2" is worth
// 2 points, any other marker 1 point. Lines that do not start with a digit are ignored.
func parseOutline(lines []string) []Criterion {
	var criteria []Criterion
	for _, line := range lines {
		text := strings.TrimSpace(line)
		if !outlineLine.MatchString(text) {
			continue
		}

		marker, name, _ := strings.Cut(text, " ")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		points := 1
		if strings.Contains(marker, "2") {
			points = 2
		}
		criteria = append(criteria, Criterion{Name: name, MaxPoints: points})
	}
	return criteria
}

// docxParagraphs returns the text of each top-level paragraph in a .docx body,
// in document order. Paragraphs inside tables, text boxes and other containers
// are skipped.
func docxParagraphs(data []byte) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &RubricFormatError{Field: "docx", Err: err}
	}

	var body *zip.File
	for _, f := range zr.File {
		if f.Name == docxBody {
			body = f
			break
		}
	}
	if body == nil {
		return nil, formatErr("docx", "missing %s", docxBody)
	}

	rc, err := body.Open()
	if err != nil {
		return nil, &RubricFormatError{Field: "docx", Err: err}
	}
	defer rc.Close()

	var (
		paragraphs []string
		current    strings.Builder
		stack      []string
		inPara     bool
		inText     bool
	)

	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &RubricFormatError{Field: "docx", Err: err}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			stack = append(stack, t.Name.Local)
			switch t.Name.Local {
			case "p":
				if bodyParagraph(stack) {
					inPara = true
					current.Reset()
				}
			case "t":
				inText = inPara && paragraphDepth(stack) == 1
			case "tab":
				if inPara && paragraphDepth(stack) == 1 {
					current.WriteByte('\t')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if inPara && bodyParagraph(stack) {
					paragraphs = append(paragraphs, current.String())
					inPara = false
				}
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}

	return paragraphs, nil
}

// bodyParagraph reports whether the innermost element is a direct w:p child of w:body.
func bodyParagraph(stack []string) bool {
	n := len(stack)
	return n == 3 && stack[1] == "body" && stack[2] == "p"
}

func paragraphDepth(stack []string) int {
	n := 0
	for _, name := range stack {
		if name == "p" {
			n++
		}
	}
	return n
}
