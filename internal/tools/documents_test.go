package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csmcp/internal/domain"
)

func TestCreateDocumentWithoutContent(t *testing.T) {
	repo := &fakeRepo{respond: respondWith("createDocument",
		`{"id": "{D1}", "className": "Invoice", "properties": []}`)}
	h := NewHandler(repo, &fakeSchema{}, nil)

	res, _, err := h.CreateDocument(context.Background(), nil, CreateDocumentInput{
		ClassIdentifier: "Invoice",
		DocumentProperties: &ObjectProperties{
			Name:       "invoice.pdf",
			Properties: []PropertyValue{{Identifier: "InvoiceNumber", Value: "INV-42"}},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), "{D1}")

	require.Len(t, repo.ops, 1)
	require.Empty(t, repo.uploads)
	op := repo.ops[0]
	assert.Equal(t, "Invoice", op.Variables["class_identifier"])
	assert.Equal(t, map[string]any{"checkinMinorVersion": false}, op.Variables["checkin_action"])

	props := op.Variables["document_properties"].(map[string]any)
	assert.Equal(t, "invoice.pdf", props["name"])
	assert.NotContains(t, props, "contentElements")
}

func TestCreateDocumentUploadsFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "contract.pdf")
	require.NoError(t, os.WriteFile(path, []byte("pdf bytes"), 0o644))

	repo := &fakeRepo{respond: respondWith("createDocument", `{"id": "{D1}"}`)}
	h := NewHandler(repo, &fakeSchema{}, nil)

	_, _, err := h.CreateDocument(context.Background(), nil, CreateDocumentInput{
		FilePaths: []string{path},
	})
	require.NoError(t, err)

	require.Len(t, repo.uploads, 1)
	require.Len(t, repo.uploads[0], 1)
	assert.Equal(t, "contvar", repo.uploads[0][0].Field)
	assert.Equal(t, "contract.pdf", repo.uploads[0][0].Name)

	props := repo.ops[0].Variables["document_properties"].(map[string]any)
	elements := props["contentElements"].(map[string]any)
	replace := elements["replace"].([]map[string]any)
	require.Len(t, replace, 1)
	assert.Equal(t, map[string]any{"content": "contvar", "retrievalName": "contract.pdf"},
		replace[0]["subContentTransfer"])
}

func TestGetDocumentPropertiesNotFound(t *testing.T) {
	repo := &fakeRepo{respond: respondWith("document", `null`)}
	h := NewHandler(repo, &fakeSchema{}, nil)

	_, _, err := h.GetDocumentProperties(context.Background(), nil, DocumentIdentifierInput{Identifier: "/missing.pdf"})
	require.Error(t, err)
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeNotFound, code)
}

func TestUpdateDocumentClassRequiresClassVariable(t *testing.T) {
	repo := &fakeRepo{respond: respondWith("updateDocument", `{"id": "{D1}", "className": "Invoice"}`)}
	h := NewHandler(repo, &fakeSchema{}, nil)

	_, _, err := h.UpdateDocumentClass(context.Background(), nil, UpdateDocumentClassInput{
		Identifier:      "{D1}",
		ClassIdentifier: "Invoice",
	})
	require.NoError(t, err)
	assert.Contains(t, repo.ops[0].Query, "$class_identifier: String!")
	assert.Equal(t, "Invoice", repo.ops[0].Variables["class_identifier"])
}

func TestCheckinDefaultsToMajorVersion(t *testing.T) {
	repo := &fakeRepo{respond: respondWith("checkinDocument", `{"id": "{D1}"}`)}
	h := NewHandler(repo, &fakeSchema{}, nil)

	_, _, err := h.CheckinDocument(context.Background(), nil, CheckinDocumentInput{Identifier: "{D1}"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"checkinMinorVersion": false},
		repo.ops[0].Variables["checkin_action"])
}

func TestCheckoutDownloadsContent(t *testing.T) {
	dir := t.TempDir()
	repo := &fakeRepo{
		respond: respondWith("checkoutDocument", `{
			"id": "{D1}",
			"currentVersion": {"contentElements": [
				{"retrievalName": "draft.docx", "downloadUrl": "https://cs.example.com/content/1"}
			]}
		}`),
		downloads: map[string][]byte{"https://cs.example.com/content/1": []byte("doc bytes")},
	}
	h := NewHandler(repo, &fakeSchema{}, nil)

	res, _, err := h.CheckoutDocument(context.Background(), nil, CheckoutDocumentInput{
		Identifier:         "{D1}",
		DownloadFolderPath: dir,
	})
	require.NoError(t, err)

	var out struct {
		DownloadedFiles []string `json:"downloaded_files"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	require.Len(t, out.DownloadedFiles, 1)
	assert.Equal(t, filepath.Join(dir, "draft.docx"), out.DownloadedFiles[0])

	written, err := os.ReadFile(out.DownloadedFiles[0])
	require.NoError(t, err)
	assert.Equal(t, "doc bytes", string(written))
}

func TestDeleteDocumentVersionReturnsID(t *testing.T) {
	repo := &fakeRepo{respond: respondWith("deleteDocument",
		`{"id": "{D1}", "className": "Invoice"}`)}
	h := NewHandler(repo, &fakeSchema{}, nil)

	res, _, err := h.DeleteDocumentVersion(context.Background(), nil, DocumentIdentifierInput{Identifier: "{D1}"})
	require.NoError(t, err)
	assert.Equal(t, "{D1}", resultText(t, res))
}

func TestGetDocumentTextExtractJoinsExtracts(t *testing.T) {
	repo := &fakeRepo{
		respond: respondWith("document", `{
			"annotations": {"annotations": [
				{"id": "a1", "className": "TxeTextExtractAnnotation", "annotatedContentElement": 0,
				 "contentElements": [{"downloadUrl": "https://cs.example.com/text/1"}]},
				{"id": "a2", "className": "Annotation", "annotatedContentElement": 0,
				 "contentElements": [{"downloadUrl": "https://cs.example.com/text/2"}]},
				{"id": "a3", "className": "TxeTextExtractAnnotation", "annotatedContentElement": null,
				 "contentElements": [{"downloadUrl": "https://cs.example.com/text/3"}]},
				{"id": "a4", "className": "TxeTextExtractAnnotation", "annotatedContentElement": 1,
				 "contentElements": [{"downloadUrl": "https://cs.example.com/text/4"}]}
			]}
		}`),
		texts: map[string]string{
			"https://cs.example.com/text/1": "page one",
			"https://cs.example.com/text/4": "page two",
		},
	}
	h := NewHandler(repo, &fakeSchema{}, nil)

	res, _, err := h.GetDocumentTextExtract(context.Background(), nil, DocumentIdentifierInput{Identifier: "{D1}"})
	require.NoError(t, err)
	assert.Equal(t, "page one\n\npage two", resultText(t, res))
}

func TestDownloadDocumentContentNoElements(t *testing.T) {
	repo := &fakeRepo{respond: respondWith("document",
		`{"id": "{D1}", "currentVersion": {"contentElements": []}}`)}
	h := NewHandler(repo, &fakeSchema{}, nil)

	_, _, err := h.DownloadDocumentContent(context.Background(), nil, DownloadDocumentContentInput{
		Identifier:         "{D1}",
		DownloadFolderPath: t.TempDir(),
	})
	require.Error(t, err)
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeNotFound, code)
}

func TestGetDocumentAnnotations(t *testing.T) {
	repo := &fakeRepo{respond: respondWith("document", `{
		"annotations": {"annotations": [
			{"id": "a1", "className": "Annotation", "name": "note", "creator": "admin"}
		]}
	}`)}
	h := NewHandler(repo, &fakeSchema{}, nil)

	res, _, err := h.GetDocumentAnnotations(context.Background(), nil, DocumentIdentifierInput{Identifier: "{D1}"})
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), "note")

	require.Len(t, repo.ops, 1)
	assert.Equal(t, "getDocumentAnnotations", repo.ops[0].Name)
}
