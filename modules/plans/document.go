package plans

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"github.com/guarzo/studyplan/common"
	"github.com/guarzo/studyplan/common/model"
)

const (
	wordContentType = "application/msword"
	byteOrderMark   = "\ufeff"
	untitled        = "Atividade Sem Título"
)

// Document is a generated plan document ready to be written to disk.
type Document struct {
	Filename    string
	ContentType string
	Data        []byte
	// Rendered is true when the backend answered with JSON and the document
	// was built locally.
	Rendered bool
}

func (s *service) GenerateDocument(ctx context.Context, googleID, planID string) (*Document, error) {
	if googleID == "" {
		return nil, fmt.Errorf("%w: user is not identified", ErrInvalidRequest)
	}

	env := s.client.Download(ctx, GenerateDocumentPath, model.DocumentPayload{
		GoogleID: googleID,
		PlanID:   planID,
	})
	if !env.OK {
		if env.Status == 0 {
			return nil, envelopeError(env)
		}
		body := env.Data.Text()
		return nil, fmt.Errorf("document generation failed: %s: %w",
			ErrorDetail(body), &common.HTTPError{StatusCode: env.Status, Body: []byte(body)})
	}

	if strings.Contains(env.Data.ContentType, "json") {
		data, err := RenderDocument(env.Data.Blob)
		if err != nil {
			return nil, err
		}
		s.logger.Info("rendered document from JSON answer", "plan_id", planID)
		return &Document{
			Filename:    fmt.Sprintf("plano-%s.doc", planID),
			ContentType: wordContentType,
			Data:        data,
			Rendered:    true,
		}, nil
	}

	name := env.Filename
	if name == "" {
		name = fmt.Sprintf("plano-%s.docx", planID)
	}
	s.logger.Info("downloaded document", "plan_id", planID, "filename", name, "bytes", len(env.Data.Blob))
	return &Document{
		Filename:    name,
		ContentType: env.Data.ContentType,
		Data:        env.Data.Blob,
	}, nil
}

// docItem is one activity or topic of a rendered document.
type docItem struct {
	Title         string
	Description   string
	Paragraph     string
	Knowledge     []string
	Justification string
}

var documentTemplate = template.Must(template.New("plan").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(`<html xmlns:o='urn:schemas-microsoft-com:office:office' xmlns:w='urn:schemas-microsoft-com:office:word' xmlns='http://www.w3.org/TR/REC-html40'>
<head><meta charset='utf-8'><title>Plano de Estudo</title></head>
<body>
<h1>Plano de Estudos Gerado via IA</h1>
<hr/>
{{range $i, $item := .}}<div style="margin-bottom: 20px; padding: 10px; border: 1px solid #ddd;">
<h2 style="color: #2563eb;">{{inc $i}}. {{$item.Title}}</h2>
{{if $item.Description}}<p><strong>Descrição:</strong> {{$item.Description}}</p>
{{end}}{{if $item.Paragraph}}<p>{{$item.Paragraph}}</p>
{{end}}{{if $item.Knowledge}}<h3>Conhecimentos Esperados:</h3>
<ul>{{range $item.Knowledge}}<li>{{.}}</li>{{end}}</ul>
{{end}}{{if $item.Justification}}<p><em><strong>Justificativa:</strong> {{$item.Justification}}</em></p>
{{end}}</div>
<br/>
{{end}}</body></html>
`))

// RenderDocument builds a Word-compatible HTML document from a JSON answer.
// The answer is either one item or an array of them; each item may wrap its
// fields in "atividade" or "topico".
func RenderDocument(raw []byte) ([]byte, error) {
	var content interface{}
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil, fmt.Errorf("failed to decode document JSON: %w", err)
	}
	// a JSON string holding JSON is unwrapped once
	if s, ok := content.(string); ok {
		if err := json.Unmarshal([]byte(s), &content); err != nil {
			return nil, fmt.Errorf("failed to decode document JSON: %w", err)
		}
	}

	list, ok := content.([]interface{})
	if !ok {
		list = []interface{}{content}
	}
	items := make([]docItem, 0, len(list))
	for _, entry := range list {
		items = append(items, toDocItem(entry))
	}

	var buf bytes.Buffer
	buf.WriteString(byteOrderMark)
	if err := documentTemplate.Execute(&buf, items); err != nil {
		return nil, fmt.Errorf("failed to render document: %w", err)
	}
	return buf.Bytes(), nil
}

func toDocItem(entry interface{}) docItem {
	obj, _ := entry.(map[string]interface{})
	for _, wrapper := range []string{"atividade", "topico"} {
		if inner, ok := obj[wrapper].(map[string]interface{}); ok {
			obj = inner
			break
		}
	}

	item := docItem{
		Title:         stringField(obj, "titulo"),
		Description:   stringField(obj, "descricao"),
		Paragraph:     stringField(obj, "paragrafo"),
		Justification: stringField(obj, "justificativa"),
	}
	if item.Title == "" {
		item.Title = untitled
	}
	switch k := obj["conhecimentos_esperados"].(type) {
	case []interface{}:
		for _, v := range k {
			item.Knowledge = append(item.Knowledge, fmt.Sprint(v))
		}
	case string:
		if k != "" {
			item.Knowledge = []string{k}
		}
	}
	return item
}

func stringField(obj map[string]interface{}, key string) string {
	switch v := obj[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
