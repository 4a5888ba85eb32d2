package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csmcp/internal/domain"
	"csmcp/internal/infra/gateway"
)

type fakeRepo struct {
	ops       []gateway.Operation
	uploads   [][]gateway.UploadFile
	respond   func(op gateway.Operation) (json.RawMessage, error)
	texts     map[string]string
	downloads map[string][]byte
}

func (f *fakeRepo) Execute(_ context.Context, op gateway.Operation) (json.RawMessage, error) {
	f.ops = append(f.ops, op)
	return f.respond(op)
}

func (f *fakeRepo) Upload(_ context.Context, op gateway.Operation, files []gateway.UploadFile) (json.RawMessage, error) {
	f.ops = append(f.ops, op)
	f.uploads = append(f.uploads, files)
	return f.respond(op)
}

func (f *fakeRepo) Download(_ context.Context, url string) ([]byte, string, error) {
	data, ok := f.downloads[url]
	if !ok {
		return nil, "", domain.E(domain.CodeNotFound, "fakeRepo.Download", "no content at "+url, nil)
	}
	return data, "", nil
}

func (f *fakeRepo) DownloadText(_ context.Context, url string) (string, error) {
	text, ok := f.texts[url]
	if !ok {
		return "", domain.E(domain.CodeNotFound, "fakeRepo.DownloadText", "no content at "+url, nil)
	}
	return text, nil
}

func (f *fakeRepo) ObjectStore() string { return "OS1" }

type fakeSchema struct {
	roots   []string
	classes map[string][]domain.ClassDescription
	schemas map[string]*domain.ClassSchema
}

func (f *fakeSchema) RootClasses() []string { return f.roots }

func (f *fakeSchema) ClassesUnderRoot(_ context.Context, root string) ([]domain.ClassDescription, error) {
	classes, ok := f.classes[root]
	if !ok {
		return nil, domain.E(domain.CodeInvalidArgument, "fakeSchema", "unknown root "+root, nil)
	}
	return classes, nil
}

func (f *fakeSchema) PropertiesOf(_ context.Context, class string) (*domain.ClassSchema, error) {
	schema, ok := f.schemas[class]
	if !ok {
		return nil, domain.E(domain.CodeNotFound, "fakeSchema", "class "+class+" not found", nil)
	}
	return schema, nil
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func respondWith(field string, body string) func(gateway.Operation) (json.RawMessage, error) {
	return func(gateway.Operation) (json.RawMessage, error) {
		return json.RawMessage(`{"` + field + `": ` + body + `}`), nil
	}
}

func TestObjectPropertiesVariable(t *testing.T) {
	props := &ObjectProperties{
		Name:     "report.pdf",
		MIMEType: "application/pdf",
		Properties: []PropertyValue{
			{Identifier: "InvoiceNumber", Value: "INV-42"},
			{Identifier: "Amount", Value: 99.5},
		},
	}
	out := props.variable()
	assert.Equal(t, "report.pdf", out["name"])
	assert.Equal(t, "application/pdf", out["mimeType"])
	assert.Equal(t, []map[string]any{
		{"InvoiceNumber": "INV-42"},
		{"Amount": 99.5},
	}, out["properties"])

	var nilProps *ObjectProperties
	assert.Empty(t, nilProps.variable())
}

func TestStageAttachmentsNamesContentVariables(t *testing.T) {
	dir := t.TempDir()
	paths := make([]string, 3)
	for i, name := range []string{"a.txt", "b.pdf", "c.txt"} {
		paths[i] = filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(paths[i], []byte("x"), 0o644))
	}

	attachments, err := stageAttachments(paths)
	require.NoError(t, err)
	defer closeAttachments(attachments)

	require.Len(t, attachments, 3)
	assert.Equal(t, "contvar", attachments[0].varName)
	assert.Equal(t, "contvar2", attachments[1].varName)
	assert.Equal(t, "contvar3", attachments[2].varName)
	assert.Equal(t, "b.pdf", attachments[1].fileName)
	assert.Equal(t, "application/pdf", attachments[1].mimeType)
}

func TestStageAttachmentsMissingFile(t *testing.T) {
	_, err := stageAttachments([]string{filepath.Join(t.TempDir(), "nope.txt")})
	require.Error(t, err)
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeInvalidArgument, code)
}

func TestContentElementsVariable(t *testing.T) {
	out := contentElementsVariable([]attachment{
		{varName: "contvar", fileName: "a.txt", mimeType: "text/plain"},
		{varName: "contvar2", fileName: "b.pdf", mimeType: "application/pdf"},
	})
	replace, ok := out["replace"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, replace, 2)
	assert.Equal(t, "CONTENT_TRANSFER", replace[0]["type"])
	assert.Equal(t, map[string]any{"content": "contvar", "retrievalName": "a.txt"},
		replace[0]["subContentTransfer"])
	assert.Equal(t, map[string]any{"newIndex": 1}, replace[1]["insertAction"])
}

func TestObjectFieldNull(t *testing.T) {
	_, err := objectField(json.RawMessage(`{"document": null}`), "document")
	require.Error(t, err)
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeNotFound, code)

	_, err = objectField(json.RawMessage(`{}`), "document")
	require.Error(t, err)

	value, err := objectField(json.RawMessage(`{"document": {"id": "d1"}}`), "document")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id": "d1"}`, string(value))
}
